package stream

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/provider"
	"github.com/openperp/indexer/internal/types"
)

// RawStream yields strictly increasing, gap-free BlockEvents starting at
// next_block, blocking on poll_interval backoff whenever the provider
// reports a block as not yet produced (§4.5, §5).
type RawStream struct {
	p        provider.Provider
	contract common.Address
	decoder  Decoder
	cfg      NormalizationConfig
	log      *zap.Logger

	next types.BlockNumber
}

// NewRawStream builds a stream that will next yield `from` once produced.
// A typical caller sets `from` to one past the Snapshot Builder's block.
func NewRawStream(p provider.Provider, contract common.Address, decoder Decoder, cfg NormalizationConfig, from types.BlockNumber, log *zap.Logger) *RawStream {
	if log == nil {
		log = zap.NewNop()
	}
	return &RawStream{p: p, contract: contract, decoder: decoder, cfg: cfg, log: log, next: from}
}

// Next blocks until block `next_block` is available, then returns its
// decoded events and advances. It never skips a block: if the provider
// reports the block as not yet produced (BlockByNumber returning (nil,
// nil)), Next sleeps for the provider's poll interval and retries the same
// block number, until ctx is cancelled.
func (s *RawStream) Next(ctx context.Context) (events.BlockEvents, error) {
	for {
		if err := ctx.Err(); err != nil {
			return events.BlockEvents{}, err
		}

		header, err := s.p.BlockByNumber(ctx, uint64(s.next))
		if err != nil {
			return events.BlockEvents{}, fmt.Errorf("fetch block %d: %w", s.next, err)
		}
		if header == nil {
			s.log.Debug("block not yet produced, backing off", zap.Uint64("block", uint64(s.next)))
			if err := s.sleepPollInterval(ctx); err != nil {
				return events.BlockEvents{}, err
			}
			continue
		}

		block, err := s.decodeBlock(ctx, header)
		if err != nil {
			return events.BlockEvents{}, err
		}

		s.log.Info("block decoded", zap.Uint64("block", uint64(s.next)), zap.Int("events", len(block.Events)))
		s.next++
		return block, nil
	}
}

func (s *RawStream) sleepPollInterval(ctx context.Context) error {
	timer := time.NewTimer(s.p.PollInterval())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *RawStream) decodeBlock(ctx context.Context, header *gethtypes.Header) (events.BlockEvents, error) {
	n := new(big.Int).SetUint64(uint64(s.next))
	logs, err := s.p.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: n,
		ToBlock:   n,
		Addresses: []common.Address{s.contract},
	})
	if err != nil {
		return events.BlockEvents{}, fmt.Errorf("fetch logs for block %d: %w", s.next, err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].TxIndex != logs[j].TxIndex {
			return logs[i].TxIndex < logs[j].TxIndex
		}
		return logs[i].Index < logs[j].Index
	})

	decoded := make([]events.RawEvent, 0, len(logs))
	for _, l := range logs {
		ev, err := s.decoder.Decode(l, s.cfg)
		if err != nil {
			return events.BlockEvents{}, fmt.Errorf("decode log tx=%s idx=%d: %w", l.TxHash, l.Index, err)
		}
		decoded = append(decoded, ev)
	}

	instant := types.StateInstant{BlockNumber: s.next, BlockTimestamp: header.Time}
	return events.BlockEvents{Instant: instant, Events: decoded}, nil
}
