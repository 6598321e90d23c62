package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/types"
)

// txScratch is the per-transaction transient state the state machine
// carries while processing one transaction's events: the active order
// request context, fills buffered waiting for their taker, and the tx_index
// the scratch state was last reset for. It is reset at every tx_index
// change and on OrderBatchCompleted — modeled as one struct so reset is a
// single assignment, never a handful of scattered field clears.
type txScratch struct {
	hasPrevTxIndex bool
	prevTxIndex    uint32

	blockInstant types.StateInstant

	orderContext *events.OrderRequestPayload

	pendingMakerFills []pendingFill
}

type pendingFill struct {
	txHash common.Hash
	fill   events.MakerFilledStateEvent
}

func (s *txScratch) reset() {
	s.orderContext = nil
	s.pendingMakerFills = nil
}

// observeTxIndex clears the scratch state if txIndex has advanced since the
// last observed event, per §4.3 step 3a.
func (s *txScratch) observeTxIndex(txIndex uint32) {
	if !s.hasPrevTxIndex || s.prevTxIndex != txIndex {
		s.reset()
	}
	s.hasPrevTxIndex = true
	s.prevTxIndex = txIndex
}
