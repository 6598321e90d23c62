// Command indexer wires a provider, a snapshot, a raw stream, and an
// Indexer into a running process that serves the result over viewserver,
// following the teacher's cmd/node.main wiring order (load config, build
// logger, assemble the app, start background loops, wait on signal context).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/chain"
	"github.com/openperp/indexer/internal/config"
	"github.com/openperp/indexer/internal/exchange"
	"github.com/openperp/indexer/internal/indexer"
	"github.com/openperp/indexer/internal/obslog"
	"github.com/openperp/indexer/internal/provider"
	"github.com/openperp/indexer/internal/snapshot"
	"github.com/openperp/indexer/internal/stream"
	"github.com/openperp/indexer/internal/types"
	"github.com/openperp/indexer/internal/viewserver"
)

const demoPerpetualId types.PerpetualId = 16

func main() {
	cfg := config.LoadFromEnv("")

	logger, err := obslog.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("logger: %v", err))
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if cfg.ContractAddress == (common.Address{}) {
		cfg.ContractAddress = common.HexToAddress("0x0000000000000000000000000000000000000001")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := chain.Chain{
		ChainId:         cfg.ChainId,
		ContractAddress: cfg.ContractAddress,
		Perpetuals: []chain.PerpetualSeed{
			{Id: demoPerpetualId, Name: "BTC-PERP", Symbol: "BTC", PriceDecimals: 2, SizeDecimals: 8, BasePrice: decimal.NewFromInt(100000)},
		},
	}

	p := provider.NewFakeProvider(cfg.ChainId, cfg.PollInterval)
	seedDemoChainState(p, c, cfg.CollateralDecimals)

	ex, err := snapshot.Build(ctx, p, c, provider.AtBlock(0), provider.AccountSelector{Explicit: []types.AccountId{0, 1}})
	if err != nil {
		sugar.Fatalw("snapshot_build_failed", "err", err)
	}
	sugar.Infow("snapshot_built", "block", ex.Instant.BlockNumber, "perpetuals", len(ex.Perpetuals), "accounts", len(ex.Accounts))

	normCfg := normalizationConfigFromExchange(ex)
	rawStream := stream.NewRawStream(p, c.ContractAddress, stream.NewABIDecoder(), normCfg, ex.Instant.BlockNumber+1, logger)

	ix, state := indexer.New(ex, rawStream, logger)
	go func() {
		if err := ix.Run(ctx); err != nil {
			sugar.Errorw("indexer_run_failed", "err", err)
			stop()
		}
	}()

	server := viewserver.New(state, logger)
	go server.Run(ctx)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server.Handler()}
	go func() {
		sugar.Infow("view_server_starting", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Errorw("view_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("view_server_shutdown_error", "err", err)
	}
}

// normalizationConfigFromExchange reads the per-perpetual converters a
// snapshot already carries, rather than re-deriving them from raw decimals:
// the raw stream decoder and the derived trade stream need exactly the
// scales the exchange itself was built with.
func normalizationConfigFromExchange(ex *exchange.Exchange) stream.NormalizationConfig {
	perpetuals := make(map[types.PerpetualId]stream.PerpetualConverters, len(ex.Perpetuals))
	for id, perp := range ex.Perpetuals {
		perpetuals[id] = stream.PerpetualConverters{
			Price:    perp.PriceConverter,
			Size:     perp.SizeConverter,
			Leverage: perp.LeverageConverter,
			Fee:      perp.FeeConverter,
		}
	}
	return stream.NormalizationConfig{CollateralConverter: ex.CollateralConverter, Perpetuals: perpetuals}
}

// seedDemoChainState fills the fake provider with a minimal exchange deploy
// (one perpetual, two funded accounts) at block 0, plus one follow-on block
// placing a resting order, so the view server has something to show without
// a real chain to poll.
func seedDemoChainState(p *provider.FakeProvider, c chain.Chain, collateralDecimals uint8) {
	p.SeedBlock(0, uint64(time.Now().Unix()), nil)
	p.SeedExchangeInfo(provider.ExchangeInfo{CollateralDecimals: collateralDecimals})

	seed := c.Perpetuals[0]
	p.SeedPerpetual(seed.Id, provider.PerpetualInfo{
		Name: seed.Name, Symbol: seed.Symbol,
		PriceDecimals: seed.PriceDecimals, SizeDecimals: seed.SizeDecimals,
		BasePrice:         seed.BasePrice,
		MakerFee:          decimal.NewFromFloat(0.0002),
		TakerFee:          decimal.NewFromFloat(0.0005),
		InitialMargin:     decimal.NewFromFloat(0.05),
		MaintenanceMargin: decimal.NewFromFloat(0.025),
		PriceMaxAge:       60,
	})

	p.SeedAccount(0, provider.AccountInfo{Address: common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"), Balance: decimal.NewFromInt(1_000_000)})
	p.SeedAccount(1, provider.AccountInfo{Address: common.HexToAddress("0xbbbb000000000000000000000000000000bbbb"), Balance: decimal.NewFromInt(1_000_000)})

	p.SeedBlock(1, uint64(time.Now().Unix())+1, demoOrderLogs(c.ContractAddress, seed.Id))
}

func demoOrderLogs(contract common.Address, perpId types.PerpetualId) []gethtypes.Log {
	tx := provider.SyntheticHash("demo-order-1")
	priceRaw := uint64(10_000_000) // 100000.00 at 2dp
	sizeRaw := uint64(100_000_000) // 1.00000000 at 8dp

	pack := func(signature string, fields []string, values ...interface{}) gethtypes.Log {
		return packABILog(contract, tx, signature, fields, values...)
	}

	req := pack("OrderRequest(uint32,uint64,uint32,uint8,uint64,uint64,uint64,uint64,bool,bool,bool)",
		[]string{"accountId", "uint32", "requestId", "uint64", "perpetualId", "uint32", "orderType", "uint8",
			"priceRaw", "uint64", "sizeRaw", "uint64", "expiryBlock", "uint64", "leverageRaw", "uint64",
			"postOnly", "bool", "fillOrKill", "bool", "ioc", "bool"},
		uint32(0), uint64(1), uint32(perpId), uint8(types.OpenLong), priceRaw, sizeRaw, uint64(0), uint64(200), false, false, false)

	placed := pack("OrderPlaced(uint32,uint16,uint64)",
		[]string{"perpetualId", "uint32", "orderId", "uint16", "clientOrderId", "uint64"},
		uint32(perpId), uint16(1), uint64(1))

	completed := pack("OrderBatchCompleted()", nil)

	req.TxIndex, req.Index = 0, 0
	placed.TxIndex, placed.Index = 0, 1
	completed.TxIndex, completed.Index = 0, 2

	return []gethtypes.Log{req, placed, completed}
}

// packABILog builds a synthetic log the same way the decoder's own ABIDecoder
// table would expect to unpack it: topic0 is keccak256 of the event
// signature, data is the positional ABI encoding of the field values.
func packABILog(contract common.Address, tx common.Hash, signature string, fields []string, values ...interface{}) gethtypes.Log {
	args := make(abi.Arguments, len(fields)/2)
	for i := range args {
		ty, err := abi.NewType(fields[2*i+1], "", nil)
		if err != nil {
			panic(fmt.Sprintf("demo log field type %q: %v", fields[2*i+1], err))
		}
		args[i] = abi.Argument{Name: fields[2*i], Type: ty}
	}
	data, err := args.Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("pack demo log %s: %v", signature, err))
	}
	return gethtypes.Log{
		Address: contract,
		Topics:  []common.Hash{crypto.Keccak256Hash([]byte(signature))},
		Data:    data,
		TxHash:  tx,
	}
}
