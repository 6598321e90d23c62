package stream

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/types"
)

func txHash(b byte) common.Hash {
	var h common.Hash
	h[0] = b
	return h
}

func TestBuildBlockTradesAggregatesOneMakerOneTaker(t *testing.T) {
	cfg := testConfig()
	s := NewTradeStream(cfg)

	block := events.BlockEvents{
		Instant: types.StateInstant{BlockNumber: 10},
		Events: []events.RawEvent{
			{Provenance: events.Provenance{TxHash: txHash(1)}, Kind: events.KindMakerOrderFilled, Payload: events.MakerOrderFilledPayload{
				PerpetualId: 16, AccountId: 2, OrderId: 5, PriceRaw: 10000000, SizeRaw: 50000000, FeeRaw: 10,
			}},
			{Provenance: events.Provenance{TxHash: txHash(1)}, Kind: events.KindTakerOrderFilled, Payload: events.TakerOrderFilledPayload{
				PerpetualId: 16, AccountId: 3, Type: types.OpenLong, SizeRaw: 50000000, FeeRaw: 20,
			}},
		},
	}

	bt := s.BuildBlockTrades(block)
	if len(bt.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(bt.Trades))
	}
	trade := bt.Trades[0]
	if trade.TakerAccountId != 3 || trade.TakerSide != types.SideOf(types.OpenLong) {
		t.Fatalf("unexpected trade %+v", trade)
	}
	if len(trade.MakerFills) != 1 || trade.MakerFills[0].AccountId != 2 {
		t.Fatalf("unexpected maker fills %+v", trade.MakerFills)
	}
	if total := trade.TotalSize(); !total.Equal(trade.MakerFills[0].Size) {
		t.Fatalf("total size = %s, want %s", total, trade.MakerFills[0].Size)
	}
	if avg, ok := trade.AvgPrice(); !ok || !avg.Equal(trade.MakerFills[0].Price) {
		t.Fatalf("avg price = %s ok=%v, want %s", avg, ok, trade.MakerFills[0].Price)
	}
}

func TestBuildBlockTradesMismatchedTxHashSkipsTrade(t *testing.T) {
	cfg := testConfig()
	s := NewTradeStream(cfg)

	block := events.BlockEvents{
		Events: []events.RawEvent{
			{Provenance: events.Provenance{TxHash: txHash(1)}, Kind: events.KindMakerOrderFilled, Payload: events.MakerOrderFilledPayload{
				PerpetualId: 16, AccountId: 2, OrderId: 5, PriceRaw: 10000000, SizeRaw: 50000000, FeeRaw: 10,
			}},
			{Provenance: events.Provenance{TxHash: txHash(2)}, Kind: events.KindTakerOrderFilled, Payload: events.TakerOrderFilledPayload{
				PerpetualId: 16, AccountId: 3, Type: types.OpenLong, SizeRaw: 50000000, FeeRaw: 20,
			}},
		},
	}

	bt := s.BuildBlockTrades(block)
	if len(bt.Trades) != 0 {
		t.Fatalf("got %d trades, want 0 on tx_hash mismatch", len(bt.Trades))
	}
}

func TestBuildBlockTradesBatchCompletedClearsBuffer(t *testing.T) {
	cfg := testConfig()
	s := NewTradeStream(cfg)

	block := events.BlockEvents{
		Events: []events.RawEvent{
			{Provenance: events.Provenance{TxHash: txHash(1)}, Kind: events.KindMakerOrderFilled, Payload: events.MakerOrderFilledPayload{
				PerpetualId: 16, AccountId: 2, OrderId: 5, PriceRaw: 10000000, SizeRaw: 50000000, FeeRaw: 10,
			}},
			{Kind: events.KindOrderBatchCompleted, Payload: events.OrderBatchCompletedPayload{}},
			{Provenance: events.Provenance{TxHash: txHash(1)}, Kind: events.KindTakerOrderFilled, Payload: events.TakerOrderFilledPayload{
				PerpetualId: 16, AccountId: 3, Type: types.OpenLong, SizeRaw: 50000000, FeeRaw: 20,
			}},
		},
	}

	bt := s.BuildBlockTrades(block)
	if len(bt.Trades) != 0 {
		t.Fatalf("got %d trades, want 0 after batch-completed clears the buffer", len(bt.Trades))
	}
}

func TestBuildBlockTradesEmptyBlockYieldsEmptyBatch(t *testing.T) {
	s := NewTradeStream(testConfig())
	bt := s.BuildBlockTrades(events.BlockEvents{Instant: types.StateInstant{BlockNumber: 5}})
	if bt.Trades != nil {
		t.Fatalf("expected nil trades slice, got %+v", bt.Trades)
	}
	if bt.Instant.BlockNumber != 5 {
		t.Fatalf("instant not propagated")
	}
}
