package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

// StateKind tags the payload carried by a StateEvent.
type StateKind uint8

const (
	StateOrderPlaced StateKind = iota + 1
	StateOrderChanged
	StateOrderCancelled
	StateOrderExpired
	StateMakerFilled
	StateTakerFilled
	StateTrade
	StateAccountCreated
	StateAccountFrozen
	StateBalanceChanged
	StatePriceUpdated
	StatePerpetualParamChanged
)

// StateEvent is one derived state transition, carrying provenance back to
// the raw event(s) that caused it.
type StateEvent struct {
	Provenance
	Kind    StateKind
	Payload any
}

// TxGroup is every StateEvent produced while processing one transaction.
type TxGroup struct {
	TxHash  common.Hash
	TxIndex uint32
	Events  []StateEvent
}

// StateBlockEvents is the output of Exchange.ApplyEvents for one block. Nil
// is a valid return: blocks that produced no state change emit nothing.
type StateBlockEvents struct {
	Instant types.StateInstant
	Groups  []TxGroup
}

type OrderPlacedStateEvent struct {
	PerpetualId types.PerpetualId
	OrderId     types.OrderId
	RequestId   types.RequestId
}

type OrderChangedStateEvent struct {
	PerpetualId types.PerpetualId
	OrderId     types.OrderId
	RequestId   types.RequestId
}

type OrderCancelledStateEvent struct {
	PerpetualId types.PerpetualId
	OrderId     types.OrderId
	RequestId   types.RequestId
}

type OrderExpiredStateEvent struct {
	PerpetualId types.PerpetualId
	OrderId     types.OrderId
}

type MakerFilledStateEvent struct {
	PerpetualId types.PerpetualId
	AccountId   types.AccountId
	OrderId     types.OrderId
	Price       decimal.Decimal
	Size        decimal.Decimal
	Fee         decimal.Decimal
}

type TakerFilledStateEvent struct {
	PerpetualId types.PerpetualId
	AccountId   types.AccountId
	Size        decimal.Decimal
	Fee         decimal.Decimal
}

// Trade is one aggregated taker+maker(s) fill, produced by both the
// exchange state machine (as a state event) and the derived trade stream.
type Trade struct {
	PerpetualId    types.PerpetualId
	TakerAccountId types.AccountId
	TakerSide      types.Side
	TakerFee       decimal.Decimal
	MakerFills     []MakerFilledStateEvent
}

// TotalSize sums the maker fill sizes.
func (t Trade) TotalSize() decimal.Decimal {
	total := decimal.Zero
	for _, f := range t.MakerFills {
		total = total.Add(f.Size)
	}
	return total
}

// AvgPrice is the volume-weighted average fill price, or (zero, false) if
// there were no fills.
func (t Trade) AvgPrice() (decimal.Decimal, bool) {
	totalSize := t.TotalSize()
	if totalSize.IsZero() {
		return decimal.Zero, false
	}
	notional := decimal.Zero
	for _, f := range t.MakerFills {
		notional = notional.Add(f.Price.Mul(f.Size))
	}
	return notional.Div(totalSize), true
}

// TotalMakerFees sums the maker fill fees.
func (t Trade) TotalMakerFees() decimal.Decimal {
	total := decimal.Zero
	for _, f := range t.MakerFills {
		total = total.Add(f.Fee)
	}
	return total
}

type AccountCreatedStateEvent struct {
	AccountId types.AccountId
}

type AccountFrozenStateEvent struct {
	AccountId types.AccountId
	Frozen    bool
}

type BalanceChangedStateEvent struct {
	AccountId types.AccountId
}

type PriceUpdatedStateEvent struct {
	PerpetualId types.PerpetualId
}

type PerpetualParamChangedStateEvent struct {
	PerpetualId types.PerpetualId
}
