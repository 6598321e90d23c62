package exchange

import (
	"github.com/openperp/indexer/internal/events"
)

func (e *Exchange) applyPriceUpdate(raw events.RawEvent, undo *undoLog) ([]events.StateEvent, error) {
	p := raw.Payload.(events.PriceUpdatePayload)
	perp, err := e.perp(p.PerpetualId)
	if err != nil {
		return nil, err
	}

	block, ts := e.scratch.blockInstant.BlockNumber, e.scratch.blockInstant.BlockTimestamp
	switch raw.Kind {
	case events.KindMarkPrice:
		old := perp.MarkPrice
		undo.record(func() { perp.MarkPrice = old })
		perp.UpdateMarkPrice(p.Price, block, ts)
	case events.KindOraclePrice:
		old := perp.OraclePrice
		undo.record(func() { perp.OraclePrice = old })
		perp.UpdateOraclePrice(p.Price, block, ts)
	case events.KindLastPrice:
		old := perp.LastPrice
		undo.record(func() { perp.LastPrice = old })
		perp.UpdateLastPrice(p.Price, block, ts)
	}

	return []events.StateEvent{{Provenance: raw.Provenance, Kind: events.StatePriceUpdated, Payload: events.PriceUpdatedStateEvent{PerpetualId: p.PerpetualId}}}, nil
}

func (e *Exchange) applyParamChanged(raw events.RawEvent, undo *undoLog) ([]events.StateEvent, error) {
	p := raw.Payload.(events.PerpetualParamChangedPayload)
	perp, err := e.perp(p.PerpetualId)
	if err != nil {
		return nil, err
	}

	if p.Paused != nil {
		old := perp.IsPaused
		undo.record(func() { perp.IsPaused = old })
		perp.UpdatePaused(*p.Paused)
	}
	if p.MakerFee != nil {
		old := perp.MakerFee
		undo.record(func() { perp.MakerFee = old })
		perp.UpdateMakerFee(*p.MakerFee)
	}
	if p.TakerFee != nil {
		old := perp.TakerFee
		undo.record(func() { perp.TakerFee = old })
		perp.UpdateTakerFee(*p.TakerFee)
	}
	if p.InitialMargin != nil {
		old := perp.InitialMargin
		undo.record(func() { perp.InitialMargin = old })
		perp.UpdateInitialMargin(*p.InitialMargin)
	}
	if p.MaintenanceMargin != nil {
		old := perp.MaintenanceMargin
		undo.record(func() { perp.MaintenanceMargin = old })
		perp.UpdateMaintenanceMargin(*p.MaintenanceMargin)
	}
	if p.PriceMaxAge != nil {
		old := perp.PriceMaxAge
		undo.record(func() { perp.PriceMaxAge = old })
		perp.UpdatePriceMaxAge(*p.PriceMaxAge)
	}

	return []events.StateEvent{{Provenance: raw.Provenance, Kind: events.StatePerpetualParamChanged, Payload: events.PerpetualParamChangedStateEvent{PerpetualId: p.PerpetualId}}}, nil
}

