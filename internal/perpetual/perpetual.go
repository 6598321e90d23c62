// Package perpetual holds Perpetual: contract metadata, market data, and
// the owned L3 order book for one tradable perpetual contract.
package perpetual

import (
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/convert"
	"github.com/openperp/indexer/internal/orderbook"
	"github.com/openperp/indexer/internal/types"
)

// FeeScale and LeverageScale are the fixed decimal scales the contract uses
// for fee and leverage fields, mirrored from the original implementation
// (FEE_SCALE=5, LEVERAGE_SCALE=2).
const (
	FeeScale      = 5
	LeverageScale = 2
)

// PriceStamp pairs a price with the instant it was last updated.
type PriceStamp struct {
	Price     decimal.Decimal
	Block     types.BlockNumber
	Timestamp uint64
}

// Perpetual is one tradable perpetual contract: immutable metadata, mutable
// market parameters and prices, open interest, and its owned order book.
type Perpetual struct {
	Id     types.PerpetualId
	Name   string
	Symbol string

	BasePrice decimal.Decimal

	PriceConverter    convert.Converter
	SizeConverter     convert.Converter
	LeverageConverter convert.Converter
	FeeConverter      convert.Converter

	IsPaused           bool
	MakerFee           decimal.Decimal
	TakerFee           decimal.Decimal
	InitialMargin      decimal.Decimal
	MaintenanceMargin  decimal.Decimal
	FundingStartBlock  types.BlockNumber
	PriceMaxAge        uint64

	LastPrice   PriceStamp
	MarkPrice   PriceStamp
	OraclePrice PriceStamp

	OpenInterest decimal.Decimal

	Book *orderbook.Book
}

// New builds an empty perpetual with the given metadata.
func New(id types.PerpetualId, name, symbol string, basePrice decimal.Decimal, priceDecimals, sizeDecimals uint8) *Perpetual {
	return &Perpetual{
		Id:                id,
		Name:              name,
		Symbol:            symbol,
		BasePrice:         basePrice,
		PriceConverter:    convert.New(priceDecimals),
		SizeConverter:     convert.New(sizeDecimals),
		LeverageConverter: convert.New(LeverageScale),
		FeeConverter:      convert.New(FeeScale),
		MakerFee:          decimal.Zero,
		TakerFee:          decimal.Zero,
		InitialMargin:     decimal.Zero,
		MaintenanceMargin: decimal.Zero,
		OpenInterest:      decimal.Zero,
		Book:              orderbook.New(),
	}
}

// Order looks up a resting order by id via the owned book.
func (p *Perpetual) Order(orderId types.OrderId) (*orderbook.Order, bool) {
	return p.Book.Order(orderId)
}

// AddOrder adds order to the book.
func (p *Perpetual) AddOrder(o *orderbook.Order) error {
	return p.Book.AddOrder(o)
}

// UpdateOrder updates a resting order's price/size/expiry.
func (p *Perpetual) UpdateOrder(orderId types.OrderId, price, size decimal.Decimal, expiry types.BlockNumber) error {
	return p.Book.UpdateOrder(orderId, price, size, expiry)
}

// RemoveOrder removes a resting order from the book.
func (p *Perpetual) RemoveOrder(orderId types.OrderId) (*orderbook.Order, error) {
	return p.Book.RemoveOrder(orderId)
}

func (p *Perpetual) UpdatePaused(paused bool)                      { p.IsPaused = paused }
func (p *Perpetual) UpdateMakerFee(fee decimal.Decimal)            { p.MakerFee = fee }
func (p *Perpetual) UpdateTakerFee(fee decimal.Decimal)            { p.TakerFee = fee }
func (p *Perpetual) UpdateInitialMargin(m decimal.Decimal)         { p.InitialMargin = m }
func (p *Perpetual) UpdateMaintenanceMargin(m decimal.Decimal)     { p.MaintenanceMargin = m }
func (p *Perpetual) UpdatePriceMaxAge(maxAge uint64)               { p.PriceMaxAge = maxAge }
func (p *Perpetual) UpdateOpenInterest(oi decimal.Decimal)         { p.OpenInterest = oi }

func (p *Perpetual) UpdateLastPrice(price decimal.Decimal, block types.BlockNumber, ts uint64) {
	p.LastPrice = PriceStamp{Price: price, Block: block, Timestamp: ts}
}

func (p *Perpetual) UpdateMarkPrice(price decimal.Decimal, block types.BlockNumber, ts uint64) {
	p.MarkPrice = PriceStamp{Price: price, Block: block, Timestamp: ts}
}

func (p *Perpetual) UpdateOraclePrice(price decimal.Decimal, block types.BlockNumber, ts uint64) {
	p.OraclePrice = PriceStamp{Price: price, Block: block, Timestamp: ts}
}

// obsolete is the predicate MarkPriceObsolete and OraclePriceObsolete share: a price is
// obsolete once its stamp plus the configured max age has passed.
func (p *Perpetual) obsolete(stamp PriceStamp, nowTimestamp uint64) bool {
	return stamp.Timestamp+p.PriceMaxAge <= nowTimestamp
}

// MarkPriceObsolete reports whether the mark price has aged past PriceMaxAge
// as of nowTimestamp.
func (p *Perpetual) MarkPriceObsolete(nowTimestamp uint64) bool {
	return p.obsolete(p.MarkPrice, nowTimestamp)
}

// OraclePriceObsolete reports whether the oracle price has aged past
// PriceMaxAge as of nowTimestamp.
func (p *Perpetual) OraclePriceObsolete(nowTimestamp uint64) bool {
	return p.obsolete(p.OraclePrice, nowTimestamp)
}
