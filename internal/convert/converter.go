// Package convert implements the fixed-point integer <-> decimal conversion
// the rest of the module uses at ingest (from the contract) and at submission
// (back to the contract); all arithmetic in between stays in decimal.
package convert

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Converter scales a contract-native unsigned integer by 10^-decimals to
// produce a decimal.Decimal, and back.
type Converter struct {
	decimals uint8
}

// New builds a Converter for a field whose on-chain scale is decimals.
func New(decimals uint8) Converter {
	return Converter{decimals: decimals}
}

// Decimals reports the scale this converter was built with.
func (c Converter) Decimals() uint8 {
	return c.decimals
}

// FromUnsigned converts a contract-native unsigned integer into a decimal.
func (c Converter) FromUnsigned(raw uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(c.decimals))
}

// FromUnsignedBig is FromUnsigned for values too large for uint64.
func (c Converter) FromUnsignedBig(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -int32(c.decimals))
}

// ToUnsigned converts a decimal back to the contract's unsigned integer
// representation, rounding toward zero (truncation). Negative input is
// clamped to zero: the contract's unsigned fields can never hold a negative
// value, and a negative decimal reaching this boundary is a caller bug, not
// a recoverable condition worth a typed error here.
func (c Converter) ToUnsigned(d decimal.Decimal) uint64 {
	if d.Sign() < 0 {
		d = decimal.Zero
	}
	scaled := d.Shift(int32(c.decimals)).Truncate(0)
	return scaled.BigInt().Uint64()
}

// FromSigned converts a contract-native signed integer into a decimal, for
// wider signed fields such as PnL.
func (c Converter) FromSigned(raw int64) decimal.Decimal {
	return decimal.New(raw, -int32(c.decimals))
}

// ToSigned converts a decimal back to the contract's signed integer
// representation, truncating toward zero.
func (c Converter) ToSigned(d decimal.Decimal) int64 {
	scaled := d.Shift(int32(c.decimals)).Truncate(0)
	return scaled.BigInt().Int64()
}
