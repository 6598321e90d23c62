package stream

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/events"
	"github.com/openperp/indexer/internal/types"
)

// eventSpec pairs a raw event kind with the ABI tuple layout its log's data
// section is packed in (§6.2). Every field is non-indexed; topic[0] alone
// identifies the event, matching the contract's own emission style as
// described for MakerOrderFilled/TakerOrderFilled's field lists.
type eventSpec struct {
	kind events.RawKind
	args abi.Arguments
}

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("stream: bad abi type %q: %v", t, err))
	}
	return ty
}

func tuple(fields ...string) abi.Arguments {
	out := make(abi.Arguments, len(fields)/2)
	for i := range out {
		out[i] = abi.Argument{Name: fields[2*i], Type: mustType(fields[2*i+1])}
	}
	return out
}

func topic(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// Decoder turns a contract log into a typed RawEvent. ABIDecoder is the one
// production implementation; tests can substitute a DecoderFunc.
type Decoder interface {
	Decode(log gethtypes.Log, cfg NormalizationConfig) (events.RawEvent, error)
}

// DecoderFunc adapts a function to a Decoder.
type DecoderFunc func(gethtypes.Log, NormalizationConfig) (events.RawEvent, error)

func (f DecoderFunc) Decode(log gethtypes.Log, cfg NormalizationConfig) (events.RawEvent, error) {
	return f(log, cfg)
}

// ABIDecoder decodes logs against the contract's fixed event table (§6.2).
type ABIDecoder struct {
	table map[common.Hash]eventSpec
}

// NewABIDecoder builds the event table once; reused across every decode call.
func NewABIDecoder() *ABIDecoder {
	return &ABIDecoder{table: map[common.Hash]eventSpec{
		topic("OrderRequest(uint32,uint64,uint32,uint8,uint64,uint64,uint64,uint64,bool,bool,bool)"): {
			kind: events.KindOrderRequest,
			args: tuple("accountId", "uint32", "requestId", "uint64", "perpetualId", "uint32", "orderType", "uint8",
				"priceRaw", "uint64", "sizeRaw", "uint64", "expiryBlock", "uint64", "leverageRaw", "uint64",
				"postOnly", "bool", "fillOrKill", "bool", "ioc", "bool"),
		},
		topic("OrderPlaced(uint32,uint16,uint64)"): {
			kind: events.KindOrderPlaced,
			args: tuple("perpetualId", "uint32", "orderId", "uint16", "clientOrderId", "uint64"),
		},
		topic("OrderChanged(uint32,uint16,uint64,uint64,uint64)"): {
			kind: events.KindOrderChanged,
			args: tuple("perpetualId", "uint32", "orderId", "uint16", "newPriceRaw", "uint64", "newSizeRaw", "uint64", "newExpiry", "uint64"),
		},
		topic("OrderCancelled(uint32,uint16)"): {
			kind: events.KindOrderCancelled,
			args: tuple("perpetualId", "uint32", "orderId", "uint16"),
		},
		topic("MakerOrderFilled(uint32,uint32,uint16,uint64,uint64,uint64)"): {
			kind: events.KindMakerOrderFilled,
			args: tuple("perpetualId", "uint32", "accountId", "uint32", "orderId", "uint16",
				"priceRaw", "uint64", "sizeRaw", "uint64", "feeRaw", "uint64"),
		},
		topic("TakerOrderFilled(uint32,uint32,uint8,uint64,uint64)"): {
			kind: events.KindTakerOrderFilled,
			args: tuple("perpetualId", "uint32", "accountId", "uint32", "orderType", "uint8", "sizeRaw", "uint64", "feeRaw", "uint64"),
		},
		topic("OrderBatchCompleted()"): {kind: events.KindOrderBatchCompleted, args: tuple()},
		topic("AccountCreated(uint32,address)"): {
			kind: events.KindAccountCreated,
			args: tuple("accountId", "uint32", "address", "address"),
		},
		topic("AccountFrozen(uint32,bool)"): {
			kind: events.KindAccountFrozen,
			args: tuple("accountId", "uint32", "frozen", "bool"),
		},
		topic("BalanceChanged(uint32,uint64,int64)"): {
			kind: events.KindBalanceChanged,
			args: tuple("accountId", "uint32", "newBalanceRaw", "uint64", "lockedDeltaRaw", "int64"),
		},
		topic("MarkPriceUpdated(uint32,uint64)"): {
			kind: events.KindMarkPrice,
			args: tuple("perpetualId", "uint32", "priceRaw", "uint64"),
		},
		topic("OraclePriceUpdated(uint32,uint64)"): {
			kind: events.KindOraclePrice,
			args: tuple("perpetualId", "uint32", "priceRaw", "uint64"),
		},
		topic("LastPriceUpdated(uint32,uint64)"): {
			kind: events.KindLastPrice,
			args: tuple("perpetualId", "uint32", "priceRaw", "uint64"),
		},
		topic("PerpetualParamChanged(uint32,uint8,bool,uint64,uint64,uint64,uint64,uint64)"): {
			kind: events.KindPerpetualParamChanged,
			args: tuple("perpetualId", "uint32", "fieldMask", "uint8", "pausedVal", "bool",
				"makerFeeRaw", "uint64", "takerFeeRaw", "uint64", "initialMarginRaw", "uint64",
				"maintenanceMarginRaw", "uint64", "priceMaxAge", "uint64"),
		},
		topic("ExchangeHalted()"):  {kind: events.KindExchangeHalted, args: tuple()},
		topic("ExchangeResumed()"): {kind: events.KindExchangeResumed, args: tuple()},
		topic("Funding(uint32)"):   {kind: events.KindFunding, args: tuple("perpetualId", "uint32")},
	}}
}

// field-mask bits for PerpetualParamChanged, matching the order params are
// declared in PerpetualParamChangedPayload.
const (
	paramPaused = 1 << iota
	paramMakerFee
	paramTakerFee
	paramInitialMargin
	paramMaintenanceMargin
	paramPriceMaxAge
)

// Decode identifies log's event by topic[0] and unpacks its data section,
// converting raw integers to decimals with cfg for order-request,
// order-change, price, balance and parameter fields, leaving maker/taker
// fill fields raw for the
// exchange's own per-perpetual converters to resolve (the same split
// internal/exchange's apply.go already assumes).
func (d *ABIDecoder) Decode(log gethtypes.Log, cfg NormalizationConfig) (events.RawEvent, error) {
	if len(log.Topics) == 0 {
		return events.RawEvent{}, fmt.Errorf("log has no topics")
	}
	spec, ok := d.table[log.Topics[0]]
	if !ok {
		return events.RawEvent{}, fmt.Errorf("unknown event topic %s", log.Topics[0])
	}

	values, err := spec.args.Unpack(log.Data)
	if err != nil {
		return events.RawEvent{}, fmt.Errorf("unpack %v: %w", spec.kind, err)
	}

	prov := events.Provenance{TxHash: log.TxHash, TxIndex: uint32(log.TxIndex), LogIndex: uint32(log.Index)}

	payload, err := d.buildPayload(spec.kind, values, cfg)
	if err != nil {
		return events.RawEvent{}, err
	}
	return events.RawEvent{Provenance: prov, Kind: spec.kind, Payload: payload}, nil
}

func (d *ABIDecoder) buildPayload(kind events.RawKind, v []interface{}, cfg NormalizationConfig) (any, error) {
	switch kind {
	case events.KindOrderRequest:
		perpId := types.PerpetualId(v[2].(uint32))
		pc, ok := cfg.forPerpetual(perpId)
		if !ok {
			return nil, fmt.Errorf("no converters configured for perpetual %d", perpId)
		}
		return events.OrderRequestPayload{
			AccountId:   types.AccountId(v[0].(uint32)),
			RequestId:   types.RequestId(v[1].(uint64)),
			PerpetualId: perpId,
			Type:        types.OrderType(v[3].(uint8)),
			Price:       pc.Price.FromUnsigned(v[4].(uint64)),
			Size:        pc.Size.FromUnsigned(v[5].(uint64)),
			ExpiryBlock: types.BlockNumber(v[6].(uint64)),
			Leverage:    pc.Leverage.FromUnsigned(v[7].(uint64)),
			PostOnly:    v[8].(bool),
			FillOrKill:  v[9].(bool),
			IOC:         v[10].(bool),
		}, nil

	case events.KindOrderPlaced:
		return events.OrderPlacedPayload{
			PerpetualId:   types.PerpetualId(v[0].(uint32)),
			OrderId:       types.OrderId(v[1].(uint16)),
			ClientOrderId: v[2].(uint64),
		}, nil

	case events.KindOrderChanged:
		perpId := types.PerpetualId(v[0].(uint32))
		pc, ok := cfg.forPerpetual(perpId)
		if !ok {
			return nil, fmt.Errorf("no converters configured for perpetual %d", perpId)
		}
		return events.OrderChangedPayload{
			PerpetualId: perpId,
			OrderId:     types.OrderId(v[1].(uint16)),
			NewPrice:    pc.Price.FromUnsigned(v[2].(uint64)),
			NewSize:     pc.Size.FromUnsigned(v[3].(uint64)),
			NewExpiry:   types.BlockNumber(v[4].(uint64)),
		}, nil

	case events.KindOrderCancelled:
		return events.OrderCancelledPayload{
			PerpetualId: types.PerpetualId(v[0].(uint32)),
			OrderId:     types.OrderId(v[1].(uint16)),
		}, nil

	case events.KindMakerOrderFilled:
		return events.MakerOrderFilledPayload{
			PerpetualId: types.PerpetualId(v[0].(uint32)),
			AccountId:   types.AccountId(v[1].(uint32)),
			OrderId:     types.OrderId(v[2].(uint16)),
			PriceRaw:    v[3].(uint64),
			SizeRaw:     v[4].(uint64),
			FeeRaw:      v[5].(uint64),
		}, nil

	case events.KindTakerOrderFilled:
		return events.TakerOrderFilledPayload{
			PerpetualId: types.PerpetualId(v[0].(uint32)),
			AccountId:   types.AccountId(v[1].(uint32)),
			Type:        types.OrderType(v[2].(uint8)),
			SizeRaw:     v[3].(uint64),
			FeeRaw:      v[4].(uint64),
		}, nil

	case events.KindOrderBatchCompleted:
		return events.OrderBatchCompletedPayload{}, nil

	case events.KindAccountCreated:
		return events.AccountCreatedPayload{
			AccountId: types.AccountId(v[0].(uint32)),
			Address:   v[1].(common.Address),
		}, nil

	case events.KindAccountFrozen:
		return events.AccountFrozenPayload{
			AccountId: types.AccountId(v[0].(uint32)),
			Frozen:    v[1].(bool),
		}, nil

	case events.KindBalanceChanged:
		return events.BalanceChangedPayload{
			AccountId:   types.AccountId(v[0].(uint32)),
			NewBalance:  cfg.CollateralConverter.FromUnsigned(v[1].(uint64)),
			LockedDelta: cfg.CollateralConverter.FromSigned(v[2].(int64)),
		}, nil

	case events.KindMarkPrice, events.KindOraclePrice, events.KindLastPrice:
		perpId := types.PerpetualId(v[0].(uint32))
		pc, ok := cfg.forPerpetual(perpId)
		if !ok {
			return nil, fmt.Errorf("no converters configured for perpetual %d", perpId)
		}
		return events.PriceUpdatePayload{PerpetualId: perpId, Price: pc.Price.FromUnsigned(v[1].(uint64))}, nil

	case events.KindPerpetualParamChanged:
		perpId := types.PerpetualId(v[0].(uint32))
		pc, ok := cfg.forPerpetual(perpId)
		if !ok {
			return nil, fmt.Errorf("no converters configured for perpetual %d", perpId)
		}
		mask := v[1].(uint8)
		p := events.PerpetualParamChangedPayload{PerpetualId: perpId}
		if mask&paramPaused != 0 {
			b := v[2].(bool)
			p.Paused = &b
		}
		if mask&paramMakerFee != 0 {
			f := pc.Fee.FromUnsigned(v[3].(uint64))
			p.MakerFee = &f
		}
		if mask&paramTakerFee != 0 {
			f := pc.Fee.FromUnsigned(v[4].(uint64))
			p.TakerFee = &f
		}
		if mask&paramInitialMargin != 0 {
			f := pc.Fee.FromUnsigned(v[5].(uint64))
			p.InitialMargin = &f
		}
		if mask&paramMaintenanceMargin != 0 {
			f := pc.Fee.FromUnsigned(v[6].(uint64))
			p.MaintenanceMargin = &f
		}
		if mask&paramPriceMaxAge != 0 {
			age := v[7].(uint64)
			p.PriceMaxAge = &age
		}
		return p, nil

	case events.KindExchangeHalted:
		return events.ExchangeHaltedPayload{}, nil
	case events.KindExchangeResumed:
		return events.ExchangeResumedPayload{}, nil

	case events.KindFunding:
		return events.FundingPayload{PerpetualId: types.PerpetualId(v[0].(uint32))}, nil

	default:
		return nil, fmt.Errorf("unhandled event kind %v", kind)
	}
}

var _ = decimal.Zero // converters return decimal.Decimal; keep the import honest if unused paths trim
