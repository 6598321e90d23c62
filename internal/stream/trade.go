package stream

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/types"
)

// BlockTrades is one block's worth of trades aggregated independently of
// Exchange state, emitted even when empty so consumers can track
// block-by-block progress (§4.6). It reuses events.Trade/MakerFilledStateEvent
// — the same shape the exchange state machine itself emits as a StateTrade
// event — so a consumer comparing the two sees identical trades.
type BlockTrades struct {
	Instant types.StateInstant
	Trades  []events.Trade
}

// pendingFill is a MakerOrderFilled waiting for its TakerOrderFilled.
type pendingFill struct {
	fill   events.MakerFilledStateEvent
	txHash common.Hash
}

// TradeStream folds a block's raw events into aggregated trades. It holds no
// state across blocks: BuildBlockTrades resets pending_maker_fills at the
// start of every block, at every tx_index change and at OrderBatchCompleted,
// per §4.6.
type TradeStream struct {
	cfg NormalizationConfig
}

// NewTradeStream builds a TradeStream scaling raw fill integers per cfg.
func NewTradeStream(cfg NormalizationConfig) *TradeStream {
	return &TradeStream{cfg: cfg}
}

// BuildBlockTrades aggregates block's maker/taker fills into whole trades.
func (s *TradeStream) BuildBlockTrades(block events.BlockEvents) BlockTrades {
	var (
		pending []pendingFill
		trades  []events.Trade
	)

	for i, raw := range block.Events {
		if i > 0 && raw.TxIndex != block.Events[i-1].TxIndex {
			pending = pending[:0]
		}
		switch raw.Kind {
		case events.KindOrderBatchCompleted:
			pending = pending[:0]

		case events.KindMakerOrderFilled:
			p := raw.Payload.(events.MakerOrderFilledPayload)
			pc, ok := s.cfg.forPerpetual(p.PerpetualId)
			if !ok {
				continue
			}
			pending = append(pending, pendingFill{
				fill: events.MakerFilledStateEvent{
					PerpetualId: p.PerpetualId,
					AccountId:   p.AccountId,
					OrderId:     p.OrderId,
					Price:       pc.Price.FromUnsigned(p.PriceRaw),
					Size:        pc.Size.FromUnsigned(p.SizeRaw),
					Fee:         pc.Fee.FromUnsigned(p.FeeRaw),
				},
				txHash: raw.TxHash,
			})

		case events.KindTakerOrderFilled:
			p := raw.Payload.(events.TakerOrderFilledPayload)
			pc, ok := s.cfg.forPerpetual(p.PerpetualId)
			if !ok {
				pending = pending[:0]
				continue
			}

			if trade, ok := s.aggregate(p, pc, raw.TxHash, pending); ok {
				trades = append(trades, trade)
			}
			pending = pending[:0]
		}
	}

	return BlockTrades{Instant: block.Instant, Trades: trades}
}

func (s *TradeStream) aggregate(p events.TakerOrderFilledPayload, pc PerpetualConverters, takerTx common.Hash, pending []pendingFill) (events.Trade, bool) {
	if len(pending) == 0 {
		return events.Trade{}, false
	}
	fills := make([]events.MakerFilledStateEvent, 0, len(pending))
	for _, pf := range pending {
		if pf.txHash != takerTx {
			return events.Trade{}, false
		}
		fills = append(fills, pf.fill)
	}

	return events.Trade{
		PerpetualId:    p.PerpetualId,
		TakerAccountId: p.AccountId,
		TakerSide:      types.SideOf(p.Type),
		TakerFee:       pc.Fee.FromUnsigned(p.FeeRaw),
		MakerFills:     fills,
	}, true
}
