package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/account"
	"github.com/openperp/indexer/internal/convert"
	"github.com/openperp/indexer/internal/exchange"
	"github.com/openperp/indexer/internal/perpetual"
	"github.com/openperp/indexer/internal/provider"
	"github.com/openperp/indexer/internal/stream"
	"github.com/openperp/indexer/internal/types"
)

const (
	testPerpId  types.PerpetualId = 16
	testAcctA   types.AccountId   = 0
	testAcctB   types.AccountId   = 1
	testChainId uint64            = 1337
)

var testContract = common.HexToAddress("0x0000000000000000000000000000000000000002")

func testExchange(t *testing.T) *exchange.Exchange {
	t.Helper()
	ex := exchange.New(testChainId, convert.New(6), exchange.Params{}, types.StateInstant{})
	perp := perpetual.New(testPerpId, "BTC-PERP", "BTC", decimal.NewFromInt(100000), 2, 8)
	ex.AddPerpetual(perp)
	ex.AddAccount(account.New(testAcctA, common.Address{}))
	ex.AddAccount(account.New(testAcctB, common.Address{}))
	return ex
}

func testNormalizationConfig() stream.NormalizationConfig {
	return stream.NormalizationConfig{
		CollateralConverter: convert.New(6),
		Perpetuals: map[types.PerpetualId]stream.PerpetualConverters{
			testPerpId: {Price: convert.New(2), Size: convert.New(8), Leverage: convert.New(2), Fee: convert.New(6)},
		},
	}
}

func abiLog(t *testing.T, signature string, fields []string, values ...interface{}) gethtypes.Log {
	t.Helper()
	args := make(abi.Arguments, len(fields)/2)
	for i := range args {
		ty, err := abi.NewType(fields[2*i+1], "", nil)
		if err != nil {
			t.Fatalf("bad abi type: %v", err)
		}
		args[i] = abi.Argument{Name: fields[2*i], Type: ty}
	}
	data, err := args.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", signature, err)
	}
	return gethtypes.Log{
		Topics:  []common.Hash{crypto.Keccak256Hash([]byte(signature))},
		Data:    data,
		Address: testContract,
	}
}

// openOrderBlock builds the three-log sequence (request, placed, batch
// completed) one order submission produces, within a single transaction.
func openOrderBlock(t *testing.T, tx common.Hash, txIndex uint, acct types.AccountId, reqId uint64, typ types.OrderType, price, size string, leverage string) []gethtypes.Log {
	t.Helper()
	priceRaw := convert.New(2).ToUnsigned(decimal.RequireFromString(price))
	sizeRaw := convert.New(8).ToUnsigned(decimal.RequireFromString(size))
	leverageRaw := convert.New(2).ToUnsigned(decimal.RequireFromString(leverage))

	req := abiLog(t, "OrderRequest(uint32,uint64,uint32,uint8,uint64,uint64,uint64,uint64,bool,bool,bool)",
		[]string{"accountId", "uint32", "requestId", "uint64", "perpetualId", "uint32", "orderType", "uint8",
			"priceRaw", "uint64", "sizeRaw", "uint64", "expiryBlock", "uint64", "leverageRaw", "uint64",
			"postOnly", "bool", "fillOrKill", "bool", "ioc", "bool"},
		uint32(acct), reqId, uint32(testPerpId), uint8(typ), priceRaw, sizeRaw, uint64(0), leverageRaw, false, false, false)

	placed := abiLog(t, "OrderPlaced(uint32,uint16,uint64)",
		[]string{"perpetualId", "uint32", "orderId", "uint16", "clientOrderId", "uint64"},
		uint32(testPerpId), uint16(reqId), reqId)

	completed := abiLog(t, "OrderBatchCompleted()", nil)

	req.TxHash, req.TxIndex, req.Index = tx, txIndex, 0
	placed.TxHash, placed.TxIndex, placed.Index = tx, txIndex, 1
	completed.TxHash, completed.TxIndex, completed.Index = tx, txIndex, 2

	return []gethtypes.Log{req, placed, completed}
}

func TestIndexerAppliesBlocksAndWaitForUnblocks(t *testing.T) {
	ex := testExchange(t)
	p := provider.NewFakeProvider(testChainId, time.Millisecond)

	logs := openOrderBlock(t, common.HexToHash("0x01"), 0, testAcctA, 1, types.OpenShort, "100000", "1", "0")
	p.SeedBlock(1, 1000, logs)

	rs := stream.NewRawStream(p, testContract, stream.NewABIDecoder(), testNormalizationConfig(), 1, nil)
	ix, state := New(ex, rs, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- ix.Run(ctx) }()

	one := types.BlockNumber(1)
	if ok := state.WaitFor(ctx, &one, nil); !ok {
		t.Fatal("WaitFor(block 1) returned false before context deadline")
	}

	var orderCount int
	state.View(func(e *exchange.Exchange) {
		perp, ok := e.Perpetuals[testPerpId]
		if !ok {
			t.Fatal("perpetual not found in exchange snapshot")
		}
		orderCount = perp.Book.NumOrders()
	})
	if orderCount != 1 {
		t.Fatalf("resting order count = %d, want 1", orderCount)
	}

	cancel()
	<-runDone
}

func TestIndexerRequestIdSeenAfterWaitFor(t *testing.T) {
	ex := testExchange(t)
	p := provider.NewFakeProvider(testChainId, time.Millisecond)
	p.SeedBlock(1, 1000, openOrderBlock(t, common.HexToHash("0x01"), 0, testAcctA, 42, types.OpenShort, "100000", "1", "0"))

	rs := stream.NewRawStream(p, testContract, stream.NewABIDecoder(), testNormalizationConfig(), 1, nil)
	ix, state := New(ex, rs, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go ix.Run(ctx)

	reqId := types.RequestId(42)
	if ok := state.WaitFor(ctx, nil, &reqId); !ok {
		t.Fatal("WaitFor(request 42) returned false before context deadline")
	}
	if !state.RequestIdSeen(42) {
		t.Fatal("request id 42 should be recorded as seen")
	}
	if state.RequestIdSeen(999) {
		t.Fatal("unrelated request id should not be seen")
	}
}
