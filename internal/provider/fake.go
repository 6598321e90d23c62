package provider

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/crypto/sha3"

	"github.com/openperp/indexer/internal/account"
	stypes "github.com/openperp/indexer/internal/types"
)

// FakeProvider is a deterministic, in-memory Provider for demonstration and
// tests: blocks and logs are seeded ahead of time, and contract-read methods
// answer from a fixed seeded snapshot rather than any real chain. Synthetic
// hashes/addresses are derived with keccak256, adapted from the teacher's
// EIP-55 address derivation in pkg/crypto/ethaddr.go.
type FakeProvider struct {
	mu sync.Mutex

	chainId      uint64
	pollInterval time.Duration

	latest  uint64
	headers map[uint64]*types.Header
	logs    map[uint64][]types.Log

	exchangeInfo ExchangeInfo
	perpetuals   map[stypes.PerpetualId]PerpetualInfo
	orders       map[stypes.PerpetualId][]OrderRecord
	accounts     map[stypes.AccountId]AccountInfo
	positions    map[stypes.AccountId]map[stypes.PerpetualId]PositionInfo
	bitmaps      map[stypes.AccountId]account.PositionBitMap
}

// NewFakeProvider builds an empty fake provider; seed it with SeedBlock and
// the SeedX contract-state helpers before driving a stream or snapshot off it.
func NewFakeProvider(chainId uint64, pollInterval time.Duration) *FakeProvider {
	return &FakeProvider{
		chainId:      chainId,
		pollInterval: pollInterval,
		headers:      make(map[uint64]*types.Header),
		logs:         make(map[uint64][]types.Log),
		perpetuals:   make(map[stypes.PerpetualId]PerpetualInfo),
		orders:       make(map[stypes.PerpetualId][]OrderRecord),
		accounts:     make(map[stypes.AccountId]AccountInfo),
		positions:    make(map[stypes.AccountId]map[stypes.PerpetualId]PositionInfo),
		bitmaps:      make(map[stypes.AccountId]account.PositionBitMap),
	}
}

// SeedBlock makes block `number` available with the given timestamp and log
// entries, advancing the provider's notion of chain tip if number > latest.
func (f *FakeProvider) SeedBlock(number, timestamp uint64, logs []types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers[number] = &types.Header{
		Number: new(big.Int).SetUint64(number),
		Time:   timestamp,
	}
	f.logs[number] = logs
	if number > f.latest {
		f.latest = number
	}
}

func (f *FakeProvider) SeedExchangeInfo(info ExchangeInfo)                 { f.exchangeInfo = info }
func (f *FakeProvider) SeedPerpetual(id stypes.PerpetualId, info PerpetualInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perpetuals[id] = info
}
func (f *FakeProvider) SeedOrders(perp stypes.PerpetualId, orders []OrderRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[perp] = orders
}
func (f *FakeProvider) SeedAccount(id stypes.AccountId, info AccountInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[id] = info
}
func (f *FakeProvider) SeedPosition(acc stypes.AccountId, perp stypes.PerpetualId, pos PositionInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byPerp, ok := f.positions[acc]
	if !ok {
		byPerp = make(map[stypes.PerpetualId]PositionInfo)
		f.positions[acc] = byPerp
	}
	byPerp[perp] = pos
}
func (f *FakeProvider) SeedBitmap(acc stypes.AccountId, bm account.PositionBitMap) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bitmaps[acc] = bm
}

func (f *FakeProvider) ChainId(ctx context.Context) (uint64, error) { return f.chainId, nil }

func (f *FakeProvider) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *FakeProvider) BlockByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.headers[number]
	if !ok {
		return nil, nil // not produced yet; caller retries
	}
	return h, nil
}

func (f *FakeProvider) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	from, to := uint64(0), f.latest
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	if q.ToBlock != nil {
		to = q.ToBlock.Uint64()
	}

	var out []types.Log
	for n := from; n <= to; n++ {
		for _, l := range f.logs[n] {
			if !addressMatches(q.Addresses, l.Address) {
				continue
			}
			out = append(out, l)
		}
	}
	return out, nil
}

func addressMatches(filter []common.Address, addr common.Address) bool {
	if len(filter) == 0 {
		return true
	}
	for _, a := range filter {
		if a == addr {
			return true
		}
	}
	return false
}

func (f *FakeProvider) BlockReceipts(ctx context.Context, number uint64) ([]*types.Receipt, error) {
	f.mu.Lock()
	logs, ok := f.logs[number]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}

	byTx := make(map[common.Hash][]*types.Log)
	var order []common.Hash
	for i := range logs {
		l := logs[i]
		if _, seen := byTx[l.TxHash]; !seen {
			order = append(order, l.TxHash)
		}
		byTx[l.TxHash] = append(byTx[l.TxHash], &l)
	}

	receipts := make([]*types.Receipt, 0, len(order))
	for _, h := range order {
		receipts = append(receipts, &types.Receipt{TxHash: h, Logs: byTx[h]})
	}
	return receipts, nil
}

func (f *FakeProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, logs := range f.logs {
		var matched []*types.Log
		for i := range logs {
			if logs[i].TxHash == hash {
				matched = append(matched, &logs[i])
			}
		}
		if len(matched) > 0 {
			return &types.Receipt{TxHash: hash, Logs: matched}, nil
		}
	}
	return nil, fmt.Errorf("transaction not found: %s", hash)
}

func (f *FakeProvider) ExchangeInfo(ctx context.Context, contract common.Address, at BlockId) (ExchangeInfo, error) {
	return f.exchangeInfo, nil
}

func (f *FakeProvider) PerpetualInfo(ctx context.Context, contract common.Address, perp stypes.PerpetualId, at BlockId) (PerpetualInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.perpetuals[perp]
	if !ok {
		return PerpetualInfo{}, &stypes.PerpetualNotFoundError{Perpetual: perp}
	}
	return info, nil
}

func (f *FakeProvider) OrderPage(ctx context.Context, contract common.Address, perp stypes.PerpetualId, cursor stypes.OrderId, limit int, at BlockId) (OrderPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.orders[perp]

	start := 0
	if cursor != 0 {
		for i, o := range all {
			if o.OrderId == cursor {
				start = i
				break
			}
		}
	}
	end := start + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	page := append([]OrderRecord(nil), all[start:end]...)

	var next stypes.OrderId
	if end < len(all) {
		next = all[end].OrderId
	}
	return OrderPage{Orders: page, NextCursor: next}, nil
}

func (f *FakeProvider) AccountInfo(ctx context.Context, contract common.Address, acc stypes.AccountId, at BlockId) (AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.accounts[acc]
	if !ok {
		return AccountInfo{}, &stypes.AccountNotFoundError{Account: acc}
	}
	return info, nil
}

func (f *FakeProvider) PositionInfo(ctx context.Context, contract common.Address, acc stypes.AccountId, perp stypes.PerpetualId, at BlockId) (PositionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions[acc][perp], nil
}

func (f *FakeProvider) PositionBitMap(ctx context.Context, contract common.Address, acc stypes.AccountId, at BlockId) (account.PositionBitMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bitmaps[acc], nil
}

func (f *FakeProvider) PollInterval() time.Duration { return f.pollInterval }

// SyntheticHash derives a deterministic transaction/block hash from a seed
// string via keccak256, for building fake event fixtures without a real chain.
func SyntheticHash(seed string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(seed))
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// SyntheticAddress derives a deterministic address from a seed string via
// keccak256, taking the low 20 bytes the way EVM contract-creation and
// ecrecover addresses are derived (teacher's pkg/crypto/ethaddr.go).
func SyntheticAddress(seed string) common.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(seed))
	sum := h.Sum(nil)
	var out common.Address
	copy(out[:], sum[12:])
	return out
}
