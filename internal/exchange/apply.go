package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	acct "github.com/openperp/indexer/internal/account"
	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/orderbook"
	"github.com/openperp/indexer/internal/perpetual"
	"github.com/openperp/indexer/internal/types"
)

// errNoOrderContext is raised when an OrderPlaced event arrives without an
// active OrderRequest context; the other order events carry their own ids
// and are applied without checking the context. It is
// an engine/ABI-decoder bug, not a taxonomy'd contract-data error, so it is
// not one of the named sentinel kinds in SPEC_FULL.md §7.
var errNoOrderContext = fmt.Errorf("order event without an active order-request context")

// ApplyEvents replays one block's raw events, mutating the exchange and
// returning the derived state events. On any invariant violation the
// exchange is left exactly as it was before the call.
func (e *Exchange) ApplyEvents(block events.BlockEvents, log *zap.Logger) (*events.StateBlockEvents, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if block.Instant.BlockNumber != e.Instant.BlockNumber+1 {
		return nil, fmt.Errorf("%w: have=%d want=%d", types.ErrNonMonotonicBlock, block.Instant.BlockNumber, e.Instant.BlockNumber+1)
	}

	undo := &undoLog{}
	e.scratch = txScratch{blockInstant: block.Instant}

	var groups []events.TxGroup
	var current *events.TxGroup

	for _, raw := range block.Events {
		if current == nil || current.TxIndex != raw.TxIndex {
			if current != nil {
				groups = append(groups, *current)
			}
			current = &events.TxGroup{TxHash: raw.TxHash, TxIndex: raw.TxIndex}
		}
		e.scratch.observeTxIndex(raw.TxIndex)

		se, err := e.applyOne(raw, undo, log)
		if err != nil {
			undo.rollback()
			return nil, err
		}
		current.Events = append(current.Events, se...)
	}
	if current != nil {
		groups = append(groups, *current)
	}

	expiryEvents := e.sweepExpiries(block.Instant, log)
	if len(expiryEvents) > 0 {
		groups = append(groups, events.TxGroup{Events: expiryEvents})
	}

	undo.commit()
	e.Instant = block.Instant

	if len(groups) == 0 {
		return nil, nil
	}
	return &events.StateBlockEvents{Instant: block.Instant, Groups: groups}, nil
}

func (e *Exchange) applyOne(raw events.RawEvent, undo *undoLog, log *zap.Logger) ([]events.StateEvent, error) {
	wrap := func(kind events.StateKind, payload any) []events.StateEvent {
		return []events.StateEvent{{Provenance: raw.Provenance, Kind: kind, Payload: payload}}
	}

	switch raw.Kind {
	case events.KindOrderRequest:
		ctx := raw.Payload.(events.OrderRequestPayload)
		prev := e.scratch.orderContext
		undo.record(func() { e.scratch.orderContext = prev })
		e.scratch.orderContext = &ctx
		return nil, nil

	case events.KindOrderPlaced:
		return e.applyOrderPlaced(raw, undo, log)

	case events.KindOrderChanged:
		return e.applyOrderChanged(raw, undo)

	case events.KindOrderCancelled:
		return e.applyOrderCancelled(raw, undo)

	case events.KindMakerOrderFilled:
		return e.applyMakerFilled(raw, undo)

	case events.KindTakerOrderFilled:
		return e.applyTakerFilled(raw, undo)

	case events.KindOrderBatchCompleted:
		e.scratch.reset()
		return nil, nil

	case events.KindAccountCreated:
		p := raw.Payload.(events.AccountCreatedPayload)
		if _, exists := e.Accounts[p.AccountId]; !exists {
			undo.record(func() { delete(e.Accounts, p.AccountId) })
			e.Accounts[p.AccountId] = acct.New(p.AccountId, p.Address)
		} else if p.Address != (common.Address{}) {
			a := e.Accounts[p.AccountId]
			old := a.Address
			undo.record(func() { a.Address = old })
			a.Address = p.Address
		}
		return wrap(events.StateAccountCreated, events.AccountCreatedStateEvent{AccountId: p.AccountId}), nil

	case events.KindAccountFrozen:
		p := raw.Payload.(events.AccountFrozenPayload)
		a, err := e.account(p.AccountId)
		if err != nil {
			return nil, err
		}
		old := a.Frozen
		undo.record(func() { a.Frozen = old })
		a.Frozen = p.Frozen
		return wrap(events.StateAccountFrozen, events.AccountFrozenStateEvent{AccountId: p.AccountId, Frozen: p.Frozen}), nil

	case events.KindBalanceChanged:
		p := raw.Payload.(events.BalanceChangedPayload)
		a, err := e.account(p.AccountId)
		if err != nil {
			return nil, err
		}
		oldBal, oldLocked := a.Balance, a.LockedBalance
		undo.record(func() { a.Balance, a.LockedBalance = oldBal, oldLocked })
		a.Balance = p.NewBalance
		a.LockedBalance = a.LockedBalance.Add(p.LockedDelta)
		return wrap(events.StateBalanceChanged, events.BalanceChangedStateEvent{AccountId: p.AccountId}), nil

	case events.KindMarkPrice, events.KindOraclePrice, events.KindLastPrice:
		return e.applyPriceUpdate(raw, undo)

	case events.KindPerpetualParamChanged:
		return e.applyParamChanged(raw, undo)

	case events.KindExchangeHalted:
		old := e.IsHalted
		undo.record(func() { e.IsHalted = old })
		e.IsHalted = true
		return nil, nil

	case events.KindExchangeResumed:
		old := e.IsHalted
		undo.record(func() { e.IsHalted = old })
		e.IsHalted = false
		return nil, nil

	case events.KindFunding:
		log.Debug("funding event deferred", zap.Any("payload", raw.Payload))
		return nil, nil

	default:
		return nil, fmt.Errorf("unhandled raw event kind %d", raw.Kind)
	}
}

func (e *Exchange) applyOrderPlaced(raw events.RawEvent, undo *undoLog, log *zap.Logger) ([]events.StateEvent, error) {
	p := raw.Payload.(events.OrderPlacedPayload)
	ctx := e.scratch.orderContext
	if ctx == nil {
		return nil, errNoOrderContext
	}
	if p.OrderId == 0 {
		return nil, types.ErrInvalidOrderId
	}
	perp, err := e.perp(p.PerpetualId)
	if err != nil {
		return nil, err
	}

	o := &orderbook.Order{
		Instant:           e.nextInstantForEvent(),
		OrderId:           p.OrderId,
		RequestId:         ctx.RequestId,
		ClientOrderId:     p.ClientOrderId,
		Type:              ctx.Type,
		AccountId:         ctx.AccountId,
		Price:             ctx.Price,
		Size:              ctx.Size,
		PlacedSize:        ctx.Size,
		HasPlaced:         true,
		ExpiryBlock:       ctx.ExpiryBlock,
		Leverage:          ctx.Leverage,
		PostOnly:          ctx.PostOnly,
		FillOrKill:        ctx.FillOrKill,
		ImmediateOrCancel: ctx.IOC,
	}
	if err := perp.AddOrder(o); err != nil {
		return nil, err
	}
	undo.record(func() { perp.RemoveOrder(o.OrderId) })

	if ctx.Type.Opens() {
		lockAmount := marginRequirement(perp, ctx.Price, ctx.Size, ctx.Leverage)
		a, err := e.account(ctx.AccountId)
		if err != nil {
			return nil, err
		}
		oldLocked := a.LockedBalance
		undo.record(func() { a.LockedBalance = oldLocked })
		a.Lock(lockAmount)
	}

	log.Debug("order placed", zap.Uint16("order_id", uint16(p.OrderId)), zap.Uint32("perpetual", uint32(p.PerpetualId)))
	return []events.StateEvent{{Provenance: raw.Provenance, Kind: events.StateOrderPlaced, Payload: events.OrderPlacedStateEvent{
		PerpetualId: p.PerpetualId, OrderId: p.OrderId, RequestId: ctx.RequestId,
	}}}, nil
}

func (e *Exchange) applyOrderChanged(raw events.RawEvent, undo *undoLog) ([]events.StateEvent, error) {
	p := raw.Payload.(events.OrderChangedPayload)
	if p.OrderId == 0 {
		return nil, types.ErrInvalidOrderId
	}
	perp, err := e.perp(p.PerpetualId)
	if err != nil {
		return nil, err
	}
	old, ok := perp.Order(p.OrderId)
	if !ok {
		return nil, &types.OrderNotFoundError{Perpetual: p.PerpetualId, OrderId: p.OrderId}
	}
	oldPrice, oldSize, oldExpiry := old.Price, old.Size, old.ExpiryBlock
	if err := perp.UpdateOrder(p.OrderId, p.NewPrice, p.NewSize, p.NewExpiry); err != nil {
		return nil, err
	}
	undo.record(func() { perp.UpdateOrder(p.OrderId, oldPrice, oldSize, oldExpiry) })

	return []events.StateEvent{{Provenance: raw.Provenance, Kind: events.StateOrderChanged, Payload: events.OrderChangedStateEvent{
		PerpetualId: p.PerpetualId, OrderId: p.OrderId,
	}}}, nil
}

func (e *Exchange) applyOrderCancelled(raw events.RawEvent, undo *undoLog) ([]events.StateEvent, error) {
	p := raw.Payload.(events.OrderCancelledPayload)
	if p.OrderId == 0 {
		return nil, types.ErrInvalidOrderId
	}
	perp, err := e.perp(p.PerpetualId)
	if err != nil {
		return nil, err
	}
	removed, err := perp.RemoveOrder(p.OrderId)
	if err != nil {
		return nil, err
	}
	undo.record(func() { perp.AddOrder(removed) })

	if removed.Type.Opens() {
		lockAmount := marginRequirement(perp, removed.Price, removed.Size, removed.Leverage)
		a, err := e.account(removed.AccountId)
		if err == nil {
			oldLocked := a.LockedBalance
			undo.record(func() { a.LockedBalance = oldLocked })
			a.Unlock(lockAmount)
		}
	}

	return []events.StateEvent{{Provenance: raw.Provenance, Kind: events.StateOrderCancelled, Payload: events.OrderCancelledStateEvent{
		PerpetualId: p.PerpetualId, OrderId: p.OrderId,
	}}}, nil
}

// marginRequirement estimates the collateral an opening order of this
// notional must lock: the perpetual's initial-margin fraction of notional
// when configured, falling back to notional/leverage.
func marginRequirement(perp *perpetual.Perpetual, price, size, leverage decimal.Decimal) decimal.Decimal {
	notional := price.Mul(size)
	if perp.InitialMargin.IsPositive() {
		return notional.Mul(perp.InitialMargin)
	}
	if leverage.IsPositive() {
		return notional.Div(leverage)
	}
	return notional
}

// nextInstantForEvent returns the instant an order created mid-block should
// be stamped with: the block currently being applied.
func (e *Exchange) nextInstantForEvent() types.StateInstant {
	return e.scratch.blockInstant
}
