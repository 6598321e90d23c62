package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/types"
)

func (e *Exchange) applyMakerFilled(raw events.RawEvent, undo *undoLog) ([]events.StateEvent, error) {
	p := raw.Payload.(events.MakerOrderFilledPayload)
	if p.OrderId == 0 {
		return nil, types.ErrInvalidOrderId
	}
	perp, err := e.perp(p.PerpetualId)
	if err != nil {
		return nil, err
	}
	order, ok := perp.Order(p.OrderId)
	if !ok {
		return nil, &types.OrderNotFoundError{Perpetual: p.PerpetualId, OrderId: p.OrderId}
	}

	fillPrice := perp.PriceConverter.FromUnsigned(p.PriceRaw)
	fillSize := perp.SizeConverter.FromUnsigned(p.SizeRaw)
	fillFee := perp.FeeConverter.FromUnsigned(p.FeeRaw)

	remaining := order.Size.Sub(fillSize)
	orderType, orderAccount, orderPrice := order.Type, order.AccountId, order.Price

	if remaining.IsPositive() {
		oldSize := order.Size
		if err := perp.UpdateOrder(p.OrderId, order.Price, remaining, order.ExpiryBlock); err != nil {
			return nil, err
		}
		undo.record(func() { perp.UpdateOrder(p.OrderId, orderPrice, oldSize, order.ExpiryBlock) })
	} else {
		removed, err := perp.RemoveOrder(p.OrderId)
		if err != nil {
			return nil, err
		}
		undo.record(func() { perp.AddOrder(removed) })
	}

	a, err := e.account(orderAccount)
	if err != nil {
		return nil, err
	}
	pos := a.PositionOrNew(p.PerpetualId, types.PositionTypeOf(orderType))
	oldPos := *pos
	undo.record(func() { *pos = oldPos })
	pos.ApplyFill(fillSize, fillPrice, orderType.Opens())
	a.PruneEmptyPosition(p.PerpetualId)

	oldOI := perp.OpenInterest
	undo.record(func() { perp.OpenInterest = oldOI })
	if orderType.Opens() {
		perp.OpenInterest = perp.OpenInterest.Add(fillSize)
	} else {
		perp.OpenInterest = perp.OpenInterest.Sub(fillSize)
		if perp.OpenInterest.IsNegative() {
			perp.OpenInterest = decimal.Zero
		}
	}

	mf := events.MakerFilledStateEvent{
		PerpetualId: p.PerpetualId,
		AccountId:   p.AccountId,
		OrderId:     p.OrderId,
		Price:       fillPrice,
		Size:        fillSize,
		Fee:         fillFee,
	}
	prevFills := e.scratch.pendingMakerFills
	undo.record(func() { e.scratch.pendingMakerFills = prevFills })
	e.scratch.pendingMakerFills = append(e.scratch.pendingMakerFills, pendingFill{txHash: raw.TxHash, fill: mf})

	return []events.StateEvent{{Provenance: raw.Provenance, Kind: events.StateMakerFilled, Payload: mf}}, nil
}

func (e *Exchange) applyTakerFilled(raw events.RawEvent, undo *undoLog) ([]events.StateEvent, error) {
	p := raw.Payload.(events.TakerOrderFilledPayload)
	perp, err := e.perp(p.PerpetualId)
	if err != nil {
		return nil, err
	}

	for _, pf := range e.scratch.pendingMakerFills {
		if pf.txHash != raw.TxHash {
			return nil, &types.TxHashMismatchError{Perpetual: p.PerpetualId}
		}
	}

	fillSize := perp.SizeConverter.FromUnsigned(p.SizeRaw)
	fillFee := perp.FeeConverter.FromUnsigned(p.FeeRaw)

	a, err := e.account(p.AccountId)
	if err != nil {
		return nil, err
	}
	pos := a.PositionOrNew(p.PerpetualId, types.PositionTypeOf(p.Type))
	oldPos := *pos

	trade := events.Trade{
		PerpetualId:    p.PerpetualId,
		TakerAccountId: p.AccountId,
		TakerSide:      types.SideOf(p.Type),
		TakerFee:       fillFee,
		MakerFills:     makerFillsOf(e.scratch.pendingMakerFills),
	}
	avgPrice, hasFills := trade.AvgPrice()
	if hasFills {
		undo.record(func() { *pos = oldPos })
		pos.ApplyFill(fillSize, avgPrice, p.Type.Opens())
		a.PruneEmptyPosition(p.PerpetualId)
	}

	prevFills := e.scratch.pendingMakerFills
	undo.record(func() { e.scratch.pendingMakerFills = prevFills })
	e.scratch.pendingMakerFills = nil

	takerEvent := events.StateEvent{Provenance: raw.Provenance, Kind: events.StateTakerFilled, Payload: events.TakerFilledStateEvent{
		PerpetualId: p.PerpetualId, AccountId: p.AccountId, Size: fillSize, Fee: fillFee,
	}}
	tradeEvent := events.StateEvent{Provenance: raw.Provenance, Kind: events.StateTrade, Payload: trade}
	return []events.StateEvent{takerEvent, tradeEvent}, nil
}

func makerFillsOf(pending []pendingFill) []events.MakerFilledStateEvent {
	out := make([]events.MakerFilledStateEvent, len(pending))
	for i, pf := range pending {
		out[i] = pf.fill
	}
	return out
}
