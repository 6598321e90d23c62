// Package account holds Account and Position, the per-account state
// entities mutated by Exchange.ApplyEvents.
package account

import (
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

// Position is a resting long or short on one perpetual, owned by its Account.
type Position struct {
	PerpetualId types.PerpetualId
	AccountId   types.AccountId
	Type        types.PositionType
	EntryPrice  decimal.Decimal
	Size        decimal.Decimal
	Deposit     decimal.Decimal // collateral backing this position
	DeltaPnl    decimal.Decimal
	PremiumPnl  decimal.Decimal
}

// Pnl is the sum of realized delta and premium PnL.
func (p *Position) Pnl() decimal.Decimal {
	return p.DeltaPnl.Add(p.PremiumPnl)
}

// ApplyFill folds a fill of fillSize at fillPrice into the position using a
// volume-weighted entry price when the fill extends the position, and
// realizes delta PnL into DeltaPnl when the fill reduces it. sameSide
// reports whether the fill extends (true) or reduces (false) the position.
func (p *Position) ApplyFill(fillSize, fillPrice decimal.Decimal, sameSide bool) {
	if sameSide {
		notionalOld := p.EntryPrice.Mul(p.Size)
		notionalNew := fillPrice.Mul(fillSize)
		newSize := p.Size.Add(fillSize)
		if newSize.IsPositive() {
			p.EntryPrice = notionalOld.Add(notionalNew).Div(newSize)
		}
		p.Size = newSize
		return
	}

	reduceBy := decimal.Min(fillSize, p.Size)
	var realized decimal.Decimal
	switch p.Type {
	case types.Long:
		realized = fillPrice.Sub(p.EntryPrice).Mul(reduceBy)
	case types.Short:
		realized = p.EntryPrice.Sub(fillPrice).Mul(reduceBy)
	}
	p.DeltaPnl = p.DeltaPnl.Add(realized)
	p.Size = p.Size.Sub(reduceBy)
}

// Empty reports whether the position has zero size and should be destroyed.
func (p *Position) Empty() bool {
	return p.Size.IsZero()
}
