package exchange

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	acct "github.com/openperp/indexer/internal/account"
	"github.com/openperp/indexer/internal/convert"
	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/perpetual"
	"github.com/openperp/indexer/internal/types"
)

const perpId types.PerpetualId = 16
const makerAcct types.AccountId = 0
const takerAcct types.AccountId = 1

func freshExchange(t *testing.T) *Exchange {
	t.Helper()
	e := New(1337, convert.New(6), Params{}, types.StateInstant{})
	p := perpetual.New(perpId, "BTC-PERP", "BTC", decimal.NewFromInt(100000), 2, 8)
	e.AddPerpetual(p)
	e.AddAccount(acct.New(makerAcct, common.HexToAddress("0xM")))
	e.AddAccount(acct.New(takerAcct, common.HexToAddress("0xT")))
	return e
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func txHash(n byte) common.Hash {
	var h common.Hash
	h[31] = n
	return h
}

// openOrderBlock builds the (OrderRequest, OrderPlaced, OrderBatchCompleted)
// triple for one resting-order placement, matching §4.3's per-transaction
// order-request model.
func openOrderBlock(instant types.StateInstant, tx common.Hash, txIndex uint32, account types.AccountId, orderType types.OrderType, orderId types.OrderId, price, size string, expiry types.BlockNumber) events.BlockEvents {
	prov := func(logIndex uint32) events.Provenance { return events.Provenance{TxHash: tx, TxIndex: txIndex, LogIndex: logIndex} }
	return events.BlockEvents{
		Instant: instant,
		Events: []events.RawEvent{
			{Provenance: prov(0), Kind: events.KindOrderRequest, Payload: events.OrderRequestPayload{
				AccountId: account, PerpetualId: perpId, Type: orderType,
				Price: dec(price), Size: dec(size), ExpiryBlock: expiry,
			}},
			{Provenance: prov(1), Kind: events.KindOrderPlaced, Payload: events.OrderPlacedPayload{
				PerpetualId: perpId, OrderId: orderId,
			}},
			{Provenance: prov(2), Kind: events.KindOrderBatchCompleted},
		},
	}
}

func mustApply(t *testing.T, e *Exchange, b events.BlockEvents) *events.StateBlockEvents {
	t.Helper()
	out, err := e.ApplyEvents(b, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return out
}

// TestScenarioBasicMakerTaker mirrors end-to-end scenario 1.
func TestScenarioBasicMakerTaker(t *testing.T) {
	e := freshExchange(t)

	mustApply(t, e, openOrderBlock(types.StateInstant{BlockNumber: 1}, txHash(1), 0, makerAcct, types.OpenShort, 5, "100000", "1", 0))

	prov := func(logIndex uint32) events.Provenance { return events.Provenance{TxHash: txHash(2), TxIndex: 0, LogIndex: logIndex} }
	takerBlock := events.BlockEvents{
		Instant: types.StateInstant{BlockNumber: 2},
		Events: []events.RawEvent{
			{Provenance: prov(0), Kind: events.KindOrderRequest, Payload: events.OrderRequestPayload{
				AccountId: takerAcct, PerpetualId: perpId, Type: types.OpenLong, Price: dec("100000"), Size: dec("0.1"),
			}},
			{Provenance: prov(1), Kind: events.KindMakerOrderFilled, Payload: events.MakerOrderFilledPayload{
				PerpetualId: perpId, AccountId: makerAcct, OrderId: 5, PriceRaw: 10000000, SizeRaw: 10000000, FeeRaw: 0,
			}},
			{Provenance: prov(2), Kind: events.KindTakerOrderFilled, Payload: events.TakerOrderFilledPayload{
				PerpetualId: perpId, AccountId: takerAcct, Type: types.OpenLong, SizeRaw: 10000000, FeeRaw: 0,
			}},
			{Provenance: prov(3), Kind: events.KindOrderBatchCompleted},
		},
	}
	mustApply(t, e, takerBlock)

	perp := e.Perpetuals[perpId]
	price, size, ok := perp.Book.BestAsk()
	if !ok || !price.Equal(dec("100000")) || !size.Equal(dec("0.9")) {
		t.Fatalf("expected ask 100000 size 0.9, got price=%s size=%s ok=%v", price, size, ok)
	}

	maker := e.Accounts[makerAcct]
	mp := maker.Positions[perpId]
	if mp == nil || mp.Type != types.Short || !mp.Size.Equal(dec("0.1")) || !mp.EntryPrice.Equal(dec("100000")) {
		t.Fatalf("unexpected maker position: %+v", mp)
	}

	taker := e.Accounts[takerAcct]
	tp := taker.Positions[perpId]
	if tp == nil || tp.Type != types.Long || !tp.Size.Equal(dec("0.1")) || !tp.EntryPrice.Equal(dec("100000")) {
		t.Fatalf("unexpected taker position: %+v", tp)
	}

	if !perp.OpenInterest.Equal(dec("0.1")) {
		t.Errorf("expected open interest 0.1, got %s", perp.OpenInterest)
	}
}

// TestScenarioFIFOWithinLevel mirrors end-to-end scenario 2.
func TestScenarioFIFOWithinLevel(t *testing.T) {
	e := freshExchange(t)
	mustApply(t, e, openOrderBlock(types.StateInstant{BlockNumber: 1}, txHash(1), 0, makerAcct, types.OpenShort, 1, "100000", "1", 0))
	mustApply(t, e, openOrderBlock(types.StateInstant{BlockNumber: 2}, txHash(2), 0, makerAcct, types.OpenShort, 2, "100000", "2", 0))

	prov := func(logIndex uint32) events.Provenance { return events.Provenance{TxHash: txHash(3), TxIndex: 0, LogIndex: logIndex} }
	takerBlock := events.BlockEvents{
		Instant: types.StateInstant{BlockNumber: 3},
		Events: []events.RawEvent{
			{Provenance: prov(0), Kind: events.KindOrderRequest, Payload: events.OrderRequestPayload{
				AccountId: takerAcct, PerpetualId: perpId, Type: types.OpenLong, Price: dec("100000"), Size: dec("1.5"),
			}},
			{Provenance: prov(1), Kind: events.KindMakerOrderFilled, Payload: events.MakerOrderFilledPayload{
				PerpetualId: perpId, AccountId: makerAcct, OrderId: 1, PriceRaw: 10000000, SizeRaw: 100000000, FeeRaw: 0,
			}},
			{Provenance: prov(2), Kind: events.KindMakerOrderFilled, Payload: events.MakerOrderFilledPayload{
				PerpetualId: perpId, AccountId: makerAcct, OrderId: 2, PriceRaw: 10000000, SizeRaw: 50000000, FeeRaw: 0,
			}},
			{Provenance: prov(3), Kind: events.KindTakerOrderFilled, Payload: events.TakerOrderFilledPayload{
				PerpetualId: perpId, AccountId: takerAcct, Type: types.OpenLong, SizeRaw: 150000000, FeeRaw: 0,
			}},
			{Provenance: prov(4), Kind: events.KindOrderBatchCompleted},
		},
	}
	mustApply(t, e, takerBlock)

	perp := e.Perpetuals[perpId]
	if _, ok := perp.Order(1); ok {
		t.Error("expected order 1 to be fully filled and removed (id vacated)")
	}
	remaining, ok := perp.Order(2)
	if !ok || !remaining.Size.Equal(dec("1.5")) {
		t.Fatalf("expected order 2 remaining size 1.5, got %+v (ok=%v)", remaining, ok)
	}
	if perp.Book.NumOrders() != 1 {
		t.Errorf("expected exactly 1 resting order, got %d", perp.Book.NumOrders())
	}
}

// TestApplyEventsRejectsNonMonotonicBlock covers invariant 5.
func TestApplyEventsRejectsNonMonotonicBlock(t *testing.T) {
	e := freshExchange(t)
	_, err := e.ApplyEvents(events.BlockEvents{Instant: types.StateInstant{BlockNumber: 5}}, nil)
	if err == nil {
		t.Fatal("expected an error applying an out-of-order block")
	}
	if e.Instant.BlockNumber != 0 {
		t.Errorf("expected state unchanged after rejected block, got instant %+v", e.Instant)
	}
}

// TestApplyEventsRollsBackOnInvariantViolation exercises block atomicity:
// a block that places a valid order then references a nonexistent order
// must leave no trace of the first event either.
func TestApplyEventsRollsBackOnInvariantViolation(t *testing.T) {
	e := freshExchange(t)
	prov := func(logIndex uint32) events.Provenance { return events.Provenance{TxHash: txHash(9), TxIndex: 0, LogIndex: logIndex} }
	bad := events.BlockEvents{
		Instant: types.StateInstant{BlockNumber: 1},
		Events: []events.RawEvent{
			{Provenance: prov(0), Kind: events.KindOrderRequest, Payload: events.OrderRequestPayload{
				AccountId: makerAcct, PerpetualId: perpId, Type: types.OpenShort, Price: dec("100000"), Size: dec("1"),
			}},
			{Provenance: prov(1), Kind: events.KindOrderPlaced, Payload: events.OrderPlacedPayload{PerpetualId: perpId, OrderId: 1}},
			{Provenance: prov(2), Kind: events.KindOrderCancelled, Payload: events.OrderCancelledPayload{PerpetualId: perpId, OrderId: 99}},
		},
	}
	_, err := e.ApplyEvents(bad, nil)
	if err == nil {
		t.Fatal("expected an error from cancelling a nonexistent order")
	}
	if e.Instant.BlockNumber != 0 {
		t.Errorf("expected instant unchanged, got %+v", e.Instant)
	}
	perp := e.Perpetuals[perpId]
	if perp.Book.NumOrders() != 0 {
		t.Errorf("expected the earlier OrderPlaced to be rolled back, got %d resting orders", perp.Book.NumOrders())
	}
}

// TestApplyEventsDeterministic covers invariant 6: replaying the same
// blocks on two fresh exchanges yields entity-wise equal results.
func TestApplyEventsDeterministic(t *testing.T) {
	run := func() *Exchange {
		e := freshExchange(t)
		mustApply(t, e, openOrderBlock(types.StateInstant{BlockNumber: 1}, txHash(1), 0, makerAcct, types.OpenShort, 7, "100000", "1", 0))
		return e
	}
	a, b := run(), run()

	pa, pb := a.Perpetuals[perpId], b.Perpetuals[perpId]
	oa, _ := pa.Order(7)
	ob, _ := pb.Order(7)
	if !oa.Price.Equal(ob.Price) || !oa.Size.Equal(ob.Size) {
		t.Errorf("expected identical resting order state, got %+v vs %+v", oa, ob)
	}
	if !pa.OpenInterest.Equal(pb.OpenInterest) {
		t.Errorf("expected identical open interest, got %s vs %s", pa.OpenInterest, pb.OpenInterest)
	}
}
