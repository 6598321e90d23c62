// Package events defines the raw events the chain emits and the derived
// state events the state machine produces, each carrying (tx_hash, tx_index,
// log_index) provenance back to its origin.
package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

// RawKind tags the decoded payload carried by a RawEvent.
type RawKind uint8

const (
	KindOrderRequest RawKind = iota + 1
	KindOrderPlaced
	KindOrderChanged
	KindOrderCancelled
	KindMakerOrderFilled
	KindTakerOrderFilled
	KindOrderBatchCompleted
	KindAccountCreated
	KindAccountFrozen
	KindBalanceChanged
	KindMarkPrice
	KindOraclePrice
	KindLastPrice
	KindPerpetualParamChanged
	KindExchangeHalted
	KindExchangeResumed
	KindFunding // deferred: decodes to a no-op transition, see SPEC_FULL.md §9
)

// Provenance locates a raw event within a block.
type Provenance struct {
	TxHash   common.Hash
	TxIndex  uint32
	LogIndex uint32
}

// RawEvent is one decoded contract event, already separated from its ABI
// encoding (ABI decoding is an external collaborator, see SPEC_FULL.md §1).
type RawEvent struct {
	Provenance
	Kind    RawKind
	Payload any // one of the *Payload types below, matching Kind
}

// BlockEvents is one block's worth of raw events in submission order.
type BlockEvents struct {
	Instant types.StateInstant
	Events  []RawEvent
}

// --- Payload types, one per RawKind ---

type OrderRequestPayload struct {
	AccountId   types.AccountId
	RequestId   types.RequestId
	PerpetualId types.PerpetualId
	Type        types.OrderType
	Price       decimal.Decimal
	Size        decimal.Decimal
	ExpiryBlock types.BlockNumber
	Leverage    decimal.Decimal
	PostOnly    bool
	FillOrKill  bool
	IOC         bool
}

type OrderPlacedPayload struct {
	PerpetualId   types.PerpetualId
	OrderId       types.OrderId
	ClientOrderId uint64
}

type OrderChangedPayload struct {
	PerpetualId types.PerpetualId
	OrderId     types.OrderId
	NewPrice    decimal.Decimal
	NewSize     decimal.Decimal
	NewExpiry   types.BlockNumber
}

type OrderCancelledPayload struct {
	PerpetualId types.PerpetualId
	OrderId     types.OrderId
}

type MakerOrderFilledPayload struct {
	PerpetualId types.PerpetualId
	AccountId   types.AccountId
	OrderId     types.OrderId
	PriceRaw    uint64
	SizeRaw     uint64
	FeeRaw      uint64
}

type TakerOrderFilledPayload struct {
	PerpetualId types.PerpetualId
	AccountId   types.AccountId
	Type        types.OrderType
	SizeRaw     uint64
	FeeRaw      uint64
}

type OrderBatchCompletedPayload struct{}

type AccountCreatedPayload struct {
	AccountId types.AccountId
	Address   common.Address // zero address means "id-only placeholder"
}

type AccountFrozenPayload struct {
	AccountId types.AccountId
	Frozen    bool
}

type BalanceChangedPayload struct {
	AccountId   types.AccountId
	NewBalance  decimal.Decimal
	LockedDelta decimal.Decimal
}

type PriceUpdatePayload struct {
	PerpetualId types.PerpetualId
	Price       decimal.Decimal
}

type PerpetualParamChangedPayload struct {
	PerpetualId       types.PerpetualId
	Paused            *bool
	MakerFee          *decimal.Decimal
	TakerFee          *decimal.Decimal
	InitialMargin     *decimal.Decimal
	MaintenanceMargin *decimal.Decimal
	PriceMaxAge       *uint64
}

type ExchangeHaltedPayload struct{}
type ExchangeResumedPayload struct{}
type FundingPayload struct{ PerpetualId types.PerpetualId }
