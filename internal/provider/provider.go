// Package provider defines the read-only chain/RPC capability the stream and
// snapshot builder run against, plus a deterministic in-memory implementation
// for demonstration and tests.
package provider

import (
	"context"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/account"
	"github.com/openperp/indexer/internal/exchange"
	stypes "github.com/openperp/indexer/internal/types"
)

// BlockId selects a specific block, or the chain tip when Number is nil.
type BlockId struct {
	Number *uint64
}

// Latest selects the chain tip.
func Latest() BlockId { return BlockId{} }

// AtBlock selects an exact block number.
func AtBlock(n uint64) BlockId { return BlockId{Number: &n} }

// ExchangeInfo is the exchange-wide parameter set read at a BlockId.
type ExchangeInfo struct {
	CollateralDecimals uint8
	Params             exchange.Params
}

// PerpetualInfo is one perpetual's static metadata and market params.
type PerpetualInfo struct {
	Name, Symbol                string
	PriceDecimals, SizeDecimals uint8
	BasePrice                   decimal.Decimal
	MakerFee, TakerFee          decimal.Decimal
	InitialMargin               decimal.Decimal
	MaintenanceMargin           decimal.Decimal
	PriceMaxAge                 uint64
	IsPaused                    bool
	OrderCount                  int
}

// OrderRecord is one resting order as the contract stores it, prev/next
// pointers included so the L3 book can be reconstructed in contract order.
type OrderRecord struct {
	OrderId, PrevOrderId, NextOrderId stypes.OrderId
	AccountId                        stypes.AccountId
	Type                             stypes.OrderType
	Price, Size                      decimal.Decimal
	ExpiryBlock                      stypes.BlockNumber
	Leverage                         decimal.Decimal
}

// OrderPage is one page of a perpetual's resting orders. NextCursor is zero
// when there is no further page.
type OrderPage struct {
	Orders     []OrderRecord
	NextCursor stypes.OrderId
}

// AccountInfo is one account's top-level balances.
type AccountInfo struct {
	Address       common.Address
	Balance       decimal.Decimal
	LockedBalance decimal.Decimal
	Frozen        bool
}

// PositionInfo is one account's position on one perpetual.
type PositionInfo struct {
	Type       stypes.PositionType
	EntryPrice decimal.Decimal
	Size       decimal.Decimal
	Deposit    decimal.Decimal
	DeltaPnl   decimal.Decimal
	PremiumPnl decimal.Decimal
}

// Provider is the chain/RPC capability consumed by the raw stream and the
// snapshot builder (§6.1). Its block/log/receipt surface mirrors
// go-ethereum's own shapes so a production implementation can wrap
// ethclient.Client directly; the contract-read methods are this module's own
// addition for the exchange's view functions.
type Provider interface {
	ChainId(ctx context.Context) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)

	// BlockByNumber returns (nil, nil) if the block has not been produced
	// yet — the signal the raw stream treats as "retry after poll_interval",
	// distinct from a returned error.
	BlockByNumber(ctx context.Context, number uint64) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockReceipts(ctx context.Context, number uint64) ([]*types.Receipt, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	ExchangeInfo(ctx context.Context, contract common.Address, at BlockId) (ExchangeInfo, error)
	PerpetualInfo(ctx context.Context, contract common.Address, perp stypes.PerpetualId, at BlockId) (PerpetualInfo, error)
	OrderPage(ctx context.Context, contract common.Address, perp stypes.PerpetualId, cursor stypes.OrderId, limit int, at BlockId) (OrderPage, error)
	AccountInfo(ctx context.Context, contract common.Address, acc stypes.AccountId, at BlockId) (AccountInfo, error)
	PositionInfo(ctx context.Context, contract common.Address, acc stypes.AccountId, perp stypes.PerpetualId, at BlockId) (PositionInfo, error)
	PositionBitMap(ctx context.Context, contract common.Address, acc stypes.AccountId, at BlockId) (account.PositionBitMap, error)

	PollInterval() time.Duration
}
