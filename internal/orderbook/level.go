package orderbook

import (
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

// bookLevel aggregates all orders resting at one price on one side. The FIFO
// queue is the orders map's intrusive prev/next links; the level only stores
// the ends.
type bookLevel struct {
	Price      decimal.Decimal
	Size       decimal.Decimal
	NumOrders  int
	HeadId     types.OrderId
	TailId     types.OrderId
}

func newLevel(price decimal.Decimal) *bookLevel {
	return &bookLevel{Price: price, Size: decimal.Zero}
}

func (l *bookLevel) empty() bool {
	return l.NumOrders == 0
}
