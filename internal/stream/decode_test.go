package stream

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/convert"
	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/types"
)

func testConfig() NormalizationConfig {
	return NormalizationConfig{
		CollateralConverter: convert.New(6),
		Perpetuals: map[types.PerpetualId]PerpetualConverters{
			16: {Price: convert.New(2), Size: convert.New(8), Leverage: convert.New(2), Fee: convert.New(6)},
		},
	}
}

func packLog(t *testing.T, signature string, args abi.Arguments, values ...interface{}) gethtypes.Log {
	t.Helper()
	data, err := args.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", signature, err)
	}
	return gethtypes.Log{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte(signature))},
		Data:   data,
		TxHash: common.HexToHash("0xaa"),
	}
}

func TestDecodeOrderRequest(t *testing.T) {
	args := tuple("accountId", "uint32", "requestId", "uint64", "perpetualId", "uint32", "orderType", "uint8",
		"priceRaw", "uint64", "sizeRaw", "uint64", "expiryBlock", "uint64", "leverageRaw", "uint64",
		"postOnly", "bool", "fillOrKill", "bool", "ioc", "bool")
	log := packLog(t, "OrderRequest(uint32,uint64,uint32,uint8,uint64,uint64,uint64,uint64,bool,bool,bool)", args,
		uint32(1), uint64(7), uint32(16), uint8(types.OpenLong), uint64(10000000), uint64(100000000), uint64(500), uint64(100), true, false, false)

	dec := NewABIDecoder()
	ev, err := dec.Decode(log, testConfig())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != events.KindOrderRequest {
		t.Fatalf("kind = %v, want KindOrderRequest", ev.Kind)
	}
	p := ev.Payload.(events.OrderRequestPayload)
	if p.AccountId != 1 || p.RequestId != 7 || p.PerpetualId != 16 {
		t.Fatalf("unexpected payload %+v", p)
	}
	if !p.Price.Equal(decimal.RequireFromString("100000")) {
		t.Fatalf("price = %s, want 100000", p.Price)
	}
	if !p.Size.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("size = %s, want 1", p.Size)
	}
	if !p.PostOnly {
		t.Fatalf("postOnly should be true")
	}
}

func TestDecodeUnknownTopicErrors(t *testing.T) {
	log := gethtypes.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}
	dec := NewABIDecoder()
	if _, err := dec.Decode(log, testConfig()); err == nil {
		t.Fatal("expected error for unknown topic")
	}
}

func TestDecodeMakerOrderFilledStaysRaw(t *testing.T) {
	args := tuple("perpetualId", "uint32", "accountId", "uint32", "orderId", "uint16",
		"priceRaw", "uint64", "sizeRaw", "uint64", "feeRaw", "uint64")
	log := packLog(t, "MakerOrderFilled(uint32,uint32,uint16,uint64,uint64,uint64)", args,
		uint32(16), uint32(2), uint16(5), uint64(10000000), uint64(50000000), uint64(100))

	dec := NewABIDecoder()
	ev, err := dec.Decode(log, testConfig())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := ev.Payload.(events.MakerOrderFilledPayload)
	if p.PriceRaw != 10000000 || p.SizeRaw != 50000000 || p.FeeRaw != 100 {
		t.Fatalf("maker fill fields should stay raw, got %+v", p)
	}
}
