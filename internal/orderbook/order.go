package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

// Order is a single resting order. Orders double as the intrusive FIFO
// queue nodes for their book: Prev/Next are order ids within the same price
// level (zero means "no neighbor"), so the book's id->*Order map is at once
// its order index and its linked-list storage.
type Order struct {
	Instant types.StateInstant

	OrderId       types.OrderId
	RequestId     types.RequestId // types.NoRequestId if absent
	ClientOrderId uint64          // 0 if absent

	Type      types.OrderType
	AccountId types.AccountId

	Price       decimal.Decimal
	Size        decimal.Decimal // current remaining size
	PlacedSize  decimal.Decimal // size at placement time; zero value means "unknown"
	HasPlaced   bool
	ExpiryBlock types.BlockNumber // 0 = no expiry
	Leverage    decimal.Decimal

	PostOnly          bool
	FillOrKill        bool
	ImmediateOrCancel bool

	// FIFO links within the order's price level. Zero means "no neighbor".
	PrevOrderId types.OrderId
	NextOrderId types.OrderId

	expired bool
}

// Side reports the book side this order rests on.
func (o *Order) Side() types.Side {
	return types.SideOf(o.Type)
}

// IsExpired reports whether the order's expiry has been crossed as of its
// own recorded instant. It returns a stored flag that only UpdateIfExpired
// sets; advancing Instant directly does not change it, and it is not
// re-derived lazily from "now".
func (o *Order) IsExpired() bool {
	return o.expired
}

// UpdateIfExpired advances the order's instant to at and marks it expired if
// its expiry_block has been crossed. Returns true if this call caused the
// order to transition into the expired state.
func (o *Order) UpdateIfExpired(at types.StateInstant) (transitioned bool) {
	wasExpired := o.expired
	o.Instant = at
	if o.ExpiryBlock != 0 && o.ExpiryBlock <= at.BlockNumber {
		o.expired = true
	}
	return !wasExpired && o.expired
}

func (o *Order) String() string {
	return fmt.Sprintf("Order{id=%d side=%s price=%s size=%s expiry=%d}",
		o.OrderId, o.Side(), o.Price, o.Size, o.ExpiryBlock)
}
