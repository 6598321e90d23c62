// Package orderbook implements the L3 order book: two price-ordered sides
// of FIFO queues, arena-backed so that place/cancel/fill by order id is O(1)
// and price-level lookup is O(log L).
package orderbook

import (
	"fmt"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

// Book is the L3 order book for one perpetual.
type Book struct {
	asks *btree.BTreeG[*bookLevel] // ascending by price
	bids *btree.BTreeG[*bookLevel] // descending by price

	// orders is both the order index (order_id -> order) and the arena
	// backing every price level's intrusive FIFO queue.
	orders map[types.OrderId]*Order
}

const btreeDegree = 32

// New builds an empty book.
func New() *Book {
	return &Book{
		asks:   btree.NewG(btreeDegree, func(a, b *bookLevel) bool { return a.Price.LessThan(b.Price) }),
		bids:   btree.NewG(btreeDegree, func(a, b *bookLevel) bool { return a.Price.GreaterThan(b.Price) }),
		orders: make(map[types.OrderId]*Order),
	}
}

func (b *Book) tree(side types.Side) *btree.BTreeG[*bookLevel] {
	if side == types.Bid {
		return b.bids
	}
	return b.asks
}

func (b *Book) levelAt(side types.Side, price decimal.Decimal) (*bookLevel, bool) {
	return b.tree(side).Get(&bookLevel{Price: price})
}

// AddOrder inserts order at the tail of its price level's FIFO queue,
// creating the level if absent. Returns DuplicateOrderIdError if the id is
// already resting.
func (b *Book) AddOrder(o *Order) error {
	if o.OrderId == 0 {
		return types.ErrInvalidOrderId
	}
	if _, exists := b.orders[o.OrderId]; exists {
		return &types.DuplicateOrderIdError{OrderId: o.OrderId}
	}

	side := o.Side()
	level, ok := b.levelAt(side, o.Price)
	if !ok {
		level = newLevel(o.Price)
		b.tree(side).ReplaceOrInsert(level)
	}

	o.PrevOrderId = level.TailId
	o.NextOrderId = 0
	if level.TailId != 0 {
		b.orders[level.TailId].NextOrderId = o.OrderId
	} else {
		level.HeadId = o.OrderId
	}
	level.TailId = o.OrderId
	level.NumOrders++
	level.Size = level.Size.Add(o.Size)

	b.orders[o.OrderId] = o
	return nil
}

// RemoveOrder unlinks order_id from its level, deleting the level if it
// becomes empty. Returns OrderNotFoundError if the id is not resting.
func (b *Book) RemoveOrder(orderId types.OrderId) (*Order, error) {
	o, ok := b.orders[orderId]
	if !ok {
		return nil, &types.OrderNotFoundError{OrderId: orderId}
	}
	side := o.Side()
	level, ok := b.levelAt(side, o.Price)
	if !ok {
		return nil, &types.OrderNotFoundError{OrderId: orderId}
	}

	if o.PrevOrderId != 0 {
		b.orders[o.PrevOrderId].NextOrderId = o.NextOrderId
	} else {
		level.HeadId = o.NextOrderId
	}
	if o.NextOrderId != 0 {
		b.orders[o.NextOrderId].PrevOrderId = o.PrevOrderId
	} else {
		level.TailId = o.PrevOrderId
	}

	level.NumOrders--
	level.Size = level.Size.Sub(o.Size)
	if level.empty() {
		b.tree(side).Delete(level)
	}

	delete(b.orders, orderId)
	o.PrevOrderId, o.NextOrderId = 0, 0
	return o, nil
}

// UpdateOrder replaces the resting order's price/size/expiry. If the price
// is unchanged the level's aggregate is adjusted in place, preserving queue
// position; otherwise the order is removed and re-added at its new price,
// losing queue position as specified.
func (b *Book) UpdateOrder(orderId types.OrderId, newPrice, newSize decimal.Decimal, newExpiry types.BlockNumber) error {
	o, ok := b.orders[orderId]
	if !ok {
		return &types.OrderNotFoundError{OrderId: orderId}
	}

	if o.Price.Equal(newPrice) {
		side := o.Side()
		level, ok := b.levelAt(side, o.Price)
		if !ok {
			return &types.OrderNotFoundError{OrderId: orderId}
		}
		level.Size = level.Size.Sub(o.Size).Add(newSize)
		o.Size = newSize
		o.ExpiryBlock = newExpiry
		return nil
	}

	removed, err := b.RemoveOrder(orderId)
	if err != nil {
		return err
	}
	removed.Price = newPrice
	removed.Size = newSize
	removed.ExpiryBlock = newExpiry
	return b.AddOrder(removed)
}

// BestAsk returns the lowest ask price with non-zero, non-all-expired
// aggregate size, and that size. ok is false if no such level exists.
func (b *Book) BestAsk() (price, size decimal.Decimal, ok bool) {
	return b.best(types.Ask)
}

// BestBid returns the highest bid price with non-zero, non-all-expired
// aggregate size, and that size. ok is false if no such level exists.
func (b *Book) BestBid() (price, size decimal.Decimal, ok bool) {
	return b.best(types.Bid)
}

func (b *Book) best(side types.Side) (price, size decimal.Decimal, ok bool) {
	var found *bookLevel
	b.tree(side).Ascend(func(level *bookLevel) bool {
		if s := b.nonExpiredSize(level); s.IsPositive() {
			found = level
			return false
		}
		return true
	})
	if found == nil {
		return decimal.Zero, decimal.Zero, false
	}
	return found.Price, b.nonExpiredSize(found), true
}

func (b *Book) nonExpiredSize(level *bookLevel) decimal.Decimal {
	total := decimal.Zero
	b.walkLevel(level, func(o *Order) bool {
		if !o.IsExpired() {
			total = total.Add(o.Size)
		}
		return true
	})
	return total
}

func (b *Book) walkLevel(level *bookLevel, fn func(*Order) bool) {
	for id := level.HeadId; id != 0; {
		o := b.orders[id]
		next := o.NextOrderId
		if !fn(o) {
			return
		}
		id = next
	}
}

// AskOrders traverses ask levels best-first, head-to-tail within each level.
func (b *Book) AskOrders(fn func(*Order) bool) {
	b.walkSide(b.asks, fn)
}

// BidOrders traverses bid levels best-first, head-to-tail within each level.
func (b *Book) BidOrders(fn func(*Order) bool) {
	b.walkSide(b.bids, fn)
}

func (b *Book) walkSide(t *btree.BTreeG[*bookLevel], fn func(*Order) bool) {
	t.Ascend(func(level *bookLevel) bool {
		cont := true
		b.walkLevel(level, func(o *Order) bool {
			cont = fn(o)
			return cont
		})
		return cont
	})
}

// Order looks up a resting order by id.
func (b *Book) Order(orderId types.OrderId) (*Order, bool) {
	o, ok := b.orders[orderId]
	return o, ok
}

// NumOrders reports the total number of resting orders across both sides.
func (b *Book) NumOrders() int {
	return len(b.orders)
}

// BookLevelView is a read-only projection of one price level, for view().
type BookLevelView struct {
	Price     decimal.Decimal
	Size      decimal.Decimal
	NumOrders int
	Orders    []*Order // at most orders_per_level entries, head-first
}

// View is a read-only depth snapshot of the book; it does not mutate state.
type View struct {
	BestBid *decimal.Decimal
	BestAsk *decimal.Decimal
	Bids    []BookLevelView
	Asks    []BookLevelView
}

// View returns a read-only projection of up to depth levels per side, each
// carrying up to ordersPerLevel orders. When showExpired is false, expired
// orders are omitted from the returned level orders and sizes (but the level
// itself is still shown if it has any non-expired size, or omitted
// entirely if not).
func (b *Book) View(depth, ordersPerLevel int, showExpired bool) View {
	v := View{}
	if price, _, ok := b.BestBid(); ok {
		p := price
		v.BestBid = &p
	}
	if price, _, ok := b.BestAsk(); ok {
		p := price
		v.BestAsk = &p
	}
	v.Bids = b.viewSide(b.bids, depth, ordersPerLevel, showExpired)
	v.Asks = b.viewSide(b.asks, depth, ordersPerLevel, showExpired)
	return v
}

func (b *Book) viewSide(t *btree.BTreeG[*bookLevel], depth, ordersPerLevel int, showExpired bool) []BookLevelView {
	var out []BookLevelView
	t.Ascend(func(level *bookLevel) bool {
		if len(out) >= depth {
			return false
		}
		lv := BookLevelView{Price: level.Price}
		b.walkLevel(level, func(o *Order) bool {
			if !showExpired && o.IsExpired() {
				return true
			}
			lv.Size = lv.Size.Add(o.Size)
			lv.NumOrders++
			if ordersPerLevel <= 0 || len(lv.Orders) < ordersPerLevel {
				lv.Orders = append(lv.Orders, o)
			}
			return true
		})
		if lv.NumOrders > 0 {
			out = append(out, lv)
		}
		return true
	})
	return out
}

func (b *Book) String() string {
	return fmt.Sprintf("Book{orders=%d}", len(b.orders))
}
