package exchange

import (
	"go.uber.org/zap"

	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/orderbook"
	"github.com/openperp/indexer/internal/types"
)

// sweepExpiries runs the end-of-block expiry pass (§4.3 step 4): every
// tracked perpetual's resting orders whose expiry_block has been crossed by
// `at` transition to expired, each transition emitting an OrderExpired
// event. It does not remove expired orders from the book — the book layer
// itself already excludes them from best-price queries while keeping them
// enumerable via view(show_expired=true).
func (e *Exchange) sweepExpiries(at types.StateInstant, log *zap.Logger) []events.StateEvent {
	var out []events.StateEvent
	for perpId, perp := range e.Perpetuals {
		visit := func(o *orderbook.Order) bool {
			if o.UpdateIfExpired(at) {
				log.Debug("order expired", zap.Uint32("perpetual", uint32(perpId)), zap.Uint16("order_id", uint16(o.OrderId)))
				out = append(out, events.StateEvent{
					Kind:    events.StateOrderExpired,
					Payload: events.OrderExpiredStateEvent{PerpetualId: perpId, OrderId: o.OrderId},
				})
			}
			return true
		}
		perp.Book.AskOrders(visit)
		perp.Book.BidOrders(visit)
	}
	return out
}
