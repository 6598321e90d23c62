// Package indexer drives a RawStream into an Exchange under a
// single-writer/multi-reader lock, so one background goroutine can advance
// state while other goroutines observe it concurrently (§5), grounded on
// original_source/crates/sdk/src/testing/indexer.rs's Indexer/IndexedState
// split.
package indexer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/exchange"
	"github.com/openperp/indexer/internal/stream"
	"github.com/openperp/indexer/internal/types"
)

const eventChannelCapacity = 256

// Indexer owns the single goroutine that pulls blocks from a RawStream and
// applies them to the shared Exchange. Nothing else in this package writes
// to the exchange.
type Indexer struct {
	stream *stream.RawStream
	state  *IndexedState
	log    *zap.Logger
}

// IndexedState is the read side: a RWMutex-guarded Exchange plus the two
// event channels Indexer publishes onto as it advances.
type IndexedState struct {
	mu       sync.RWMutex
	exchange *exchange.Exchange

	rawEvents   chan events.BlockEvents
	stateEvents chan *events.StateBlockEvents

	requestIdsMu sync.Mutex
	requestIds   map[types.RequestId]struct{}
}

// New builds an Indexer/IndexedState pair seeded with the exchange produced
// by a Snapshot Builder run (or any other already-built Exchange), ready to
// stream subsequent blocks onto.
func New(initial *exchange.Exchange, rawStream *stream.RawStream, log *zap.Logger) (*Indexer, *IndexedState) {
	if log == nil {
		log = zap.NewNop()
	}
	state := &IndexedState{
		exchange:    initial,
		rawEvents:   make(chan events.BlockEvents, eventChannelCapacity),
		stateEvents: make(chan *events.StateBlockEvents, eventChannelCapacity),
		requestIds:  make(map[types.RequestId]struct{}),
	}
	return &Indexer{stream: rawStream, state: state, log: log}, state
}

// Run pulls blocks from the raw stream and applies them to the shared
// exchange until ctx is cancelled or the stream/apply step errors. It is the
// only goroutine that ever takes the write lock.
func (ix *Indexer) Run(ctx context.Context) error {
	defer close(ix.state.rawEvents)
	defer close(ix.state.stateEvents)

	for {
		block, err := ix.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch next block: %w", err)
		}

		ix.state.mu.Lock()
		result, applyErr := ix.state.exchange.ApplyEvents(block, ix.log)
		ix.state.mu.Unlock()

		select {
		case ix.state.rawEvents <- block:
		case <-ctx.Done():
			return nil
		}

		if applyErr != nil {
			ix.log.Error("failed to apply block", zap.Uint64("block", uint64(block.Instant.BlockNumber)), zap.Error(applyErr))
			return fmt.Errorf("apply block %d: %w", block.Instant.BlockNumber, applyErr)
		}
		if result == nil {
			continue
		}

		select {
		case ix.state.stateEvents <- result:
		case <-ctx.Done():
			return nil
		}
	}
}

// View runs fn against the current exchange under a read lock. fn must not
// retain the pointer beyond the call: no lock is held across suspension
// points.
func (s *IndexedState) View(fn func(*exchange.Exchange)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.exchange)
}

// NextRawEvents returns the next batch of raw events, or false once the
// stream has ended.
func (s *IndexedState) NextRawEvents(ctx context.Context) (events.BlockEvents, bool) {
	select {
	case b, ok := <-s.rawEvents:
		return b, ok
	case <-ctx.Done():
		return events.BlockEvents{}, false
	}
}

// NextStateEvents returns the next batch of state events, recording every
// order-event request id it carries so RequestIdSeen can answer later, or
// false once the stream has ended.
func (s *IndexedState) NextStateEvents(ctx context.Context) (*events.StateBlockEvents, bool) {
	select {
	case batch, ok := <-s.stateEvents:
		if ok {
			s.recordRequestIds(batch)
		}
		return batch, ok
	case <-ctx.Done():
		return nil, false
	}
}

func (s *IndexedState) recordRequestIds(batch *events.StateBlockEvents) {
	s.requestIdsMu.Lock()
	defer s.requestIdsMu.Unlock()
	for _, group := range batch.Groups {
		for _, ev := range group.Events {
			if rid, ok := requestIdOf(ev); ok && rid != types.NoRequestId {
				s.requestIds[rid] = struct{}{}
			}
		}
	}
}

func requestIdOf(ev events.StateEvent) (types.RequestId, bool) {
	switch p := ev.Payload.(type) {
	case events.OrderPlacedStateEvent:
		return p.RequestId, true
	case events.OrderChangedStateEvent:
		return p.RequestId, true
	case events.OrderCancelledStateEvent:
		return p.RequestId, true
	default:
		return 0, false
	}
}

// RequestIdSeen reports whether request_id has appeared in any state event
// batch consumed so far via NextStateEvents.
func (s *IndexedState) RequestIdSeen(id types.RequestId) bool {
	s.requestIdsMu.Lock()
	defer s.requestIdsMu.Unlock()
	_, ok := s.requestIds[id]
	return ok
}

// WaitFor drains state event batches, skipping all before the first one that
// matches blockNumber (if non-nil) or carries requestId (if non-nil), and
// returns true on a match or false once the stream ends first.
func (s *IndexedState) WaitFor(ctx context.Context, blockNumber *types.BlockNumber, requestId *types.RequestId) bool {
	for {
		batch, ok := s.NextStateEvents(ctx)
		if !ok {
			return false
		}
		if blockNumber != nil && batch.Instant.BlockNumber == *blockNumber {
			return true
		}
		if requestId != nil && batchHasRequestId(batch, *requestId) {
			return true
		}
	}
}

func batchHasRequestId(batch *events.StateBlockEvents, id types.RequestId) bool {
	for _, group := range batch.Groups {
		for _, ev := range group.Events {
			if rid, ok := requestIdOf(ev); ok && rid == id {
				return true
			}
		}
	}
	return false
}
