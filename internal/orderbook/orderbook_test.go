package orderbook

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

func mkOrder(id types.OrderId, typ types.OrderType, price, size string) *Order {
	return &Order{
		OrderId: id,
		Type:    typ,
		Price:   decimal.RequireFromString(price),
		Size:    decimal.RequireFromString(size),
	}
}

func TestAddOrderCreatesLevelAndTracksAggregate(t *testing.T) {
	b := New()
	if err := b.AddOrder(mkOrder(1, types.OpenShort, "100000", "1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	price, size, ok := b.BestAsk()
	if !ok {
		t.Fatal("expected a best ask")
	}
	if !price.Equal(decimal.RequireFromString("100000")) || !size.Equal(decimal.RequireFromString("1")) {
		t.Errorf("got price=%s size=%s", price, size)
	}
}

func TestAddOrderDuplicateId(t *testing.T) {
	b := New()
	must(t, b.AddOrder(mkOrder(1, types.OpenShort, "100000", "1")))
	err := b.AddOrder(mkOrder(1, types.OpenShort, "99000", "1"))
	var dup *types.DuplicateOrderIdError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateOrderIdError, got %v", err)
	}
}

// TestFIFOWithinLevel mirrors end-to-end scenario 2: two makers rest at the
// same price, a partial fill removes the first (FIFO) and leaves the
// second's residual size, so the level still holds exactly one order.
func TestFIFOWithinLevel(t *testing.T) {
	b := New()
	must(t, b.AddOrder(mkOrder(1, types.OpenShort, "100000", "1")))
	must(t, b.AddOrder(mkOrder(2, types.OpenShort, "100000", "2")))

	// Taker takes 1.5: first maker (id 1) fully filled and removed.
	if _, err := b.RemoveOrder(1); err != nil {
		t.Fatalf("remove filled maker: %v", err)
	}
	must(t, b.UpdateOrder(2, decimal.RequireFromString("100000"), decimal.RequireFromString("1.5"), 0))

	if b.NumOrders() != 1 {
		t.Fatalf("expected 1 resting order, got %d", b.NumOrders())
	}
	_, size, ok := b.BestAsk()
	if !ok || !size.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("expected best ask size 1.5, got %s (ok=%v)", size, ok)
	}
}

// TestChangePriceLosesQueuePosition mirrors end-to-end scenario 3.
func TestChangePriceLosesQueuePosition(t *testing.T) {
	b := New()
	must(t, b.AddOrder(mkOrder(1, types.OpenShort, "100000", "1"))) // A
	must(t, b.AddOrder(mkOrder(2, types.OpenShort, "100000", "1"))) // B
	must(t, b.AddOrder(mkOrder(3, types.OpenShort, "100000", "1"))) // C

	must(t, b.UpdateOrder(2, decimal.RequireFromString("99900"), decimal.RequireFromString("1"), 0))

	price, size, ok := b.BestAsk()
	if !ok || !price.Equal(decimal.RequireFromString("99900")) {
		t.Fatalf("expected best ask 99900, got %s (ok=%v)", price, ok)
	}
	if !size.Equal(decimal.RequireFromString("1")) {
		t.Errorf("expected best ask size 1, got %s", size)
	}

	var ids []types.OrderId
	b.AskOrders(func(o *Order) bool {
		ids = append(ids, o.OrderId)
		return true
	})
	want := []types.OrderId{2, 1, 3}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("order %d: got %d, want %d", i, ids[i], want[i])
		}
	}
}

// TestCancelAndReuseId mirrors end-to-end scenario 4: cancelling an id frees
// it for reuse at a different price.
func TestCancelAndReuseId(t *testing.T) {
	b := New()
	must(t, b.AddOrder(mkOrder(5, types.OpenShort, "100000", "3")))
	if _, err := b.RemoveOrder(5); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	must(t, b.AddOrder(mkOrder(5, types.OpenShort, "99800", "2")))

	price, _, ok := b.BestAsk()
	if !ok || !price.Equal(decimal.RequireFromString("99800")) {
		t.Fatalf("expected best ask 99800, got %s (ok=%v)", price, ok)
	}
	if b.NumOrders() != 1 {
		t.Errorf("expected 1 resting order, got %d", b.NumOrders())
	}
}

// TestExpiryExcludedFromBestButVisibleInView mirrors end-to-end scenario 5.
func TestExpiryExcludedFromBestButVisibleInView(t *testing.T) {
	b := New()
	o := mkOrder(1, types.OpenShort, "100000", "1")
	o.ExpiryBlock = 50
	must(t, b.AddOrder(o))

	o.UpdateIfExpired(types.StateInstant{BlockNumber: 50})

	if _, _, ok := b.BestAsk(); ok {
		t.Error("expected no best ask once the only resting order expired")
	}

	v := b.View(10, 10, true)
	if len(v.Asks) != 1 || v.Asks[0].NumOrders != 1 {
		t.Errorf("expected expired order visible in view(show_expired=true): %+v", v.Asks)
	}

	v2 := b.View(10, 10, false)
	if len(v2.Asks) != 0 {
		t.Errorf("expected no asks in view(show_expired=false): %+v", v2.Asks)
	}
}

func TestRemoveOrderNotFound(t *testing.T) {
	b := New()
	_, err := b.RemoveOrder(99)
	var nf *types.OrderNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected OrderNotFoundError, got %v", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

