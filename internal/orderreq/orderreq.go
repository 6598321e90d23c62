// Package orderreq translates a normalized order request into the raw
// integer descriptor the contract's submission call accepts (§6.4), the
// inverse of the Numeric Converter step the raw stream decoder performs on
// the way in.
package orderreq

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/convert"
	"github.com/openperp/indexer/internal/types"
)

// Kind distinguishes the three actions a request can submit. It is separate
// from types.OrderType, which is only meaningful for Place (it names the
// resulting position side, not the request's verb).
type Kind uint8

const (
	Place Kind = iota + 1
	Cancel
	Change
)

// Request is the normalized form callers build and this package encodes.
// OrderId is only meaningful for Cancel/Change; Price/Size/ExpiryBlock are
// meaningful for Place and Change; Type/PostOnly/FillOrKill/IOC/Leverage
// are only meaningful for Place.
type Request struct {
	RequestId   types.RequestId
	PerpetualId types.PerpetualId
	Kind        Kind
	OrderId     types.OrderId
	Type        types.OrderType
	Price       decimal.Decimal
	Size        decimal.Decimal
	ExpiryBlock types.BlockNumber
	PostOnly    bool
	FillOrKill  bool
	IOC         bool
	Leverage    decimal.Decimal
}

// Converters are the scales a request's decimal fields are packed at — the
// same per-perpetual converters the raw stream decoder reads the reverse
// direction with.
type Converters struct {
	Price, Size, Leverage convert.Converter
}

const descriptorSignature = "submitOrderRequest(uint64,uint32,uint8,uint16,uint8,uint64,uint64,uint64,uint64,bool,bool,bool)"

var descriptorArgs = func() abi.Arguments {
	typ := func(t string) abi.Type {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		return ty
	}
	return abi.Arguments{
		{Name: "requestId", Type: typ("uint64")},
		{Name: "perpetualId", Type: typ("uint32")},
		{Name: "kind", Type: typ("uint8")},
		{Name: "orderId", Type: typ("uint16")},
		{Name: "orderType", Type: typ("uint8")},
		{Name: "priceRaw", Type: typ("uint64")},
		{Name: "sizeRaw", Type: typ("uint64")},
		{Name: "expiryBlock", Type: typ("uint64")},
		{Name: "leverageRaw", Type: typ("uint64")},
		{Name: "postOnly", Type: typ("bool")},
		{Name: "fillOrKill", Type: typ("bool")},
		{Name: "ioc", Type: typ("bool")},
	}
}()

// Encode packs req into the calldata the contract's submission call expects:
// a 4-byte selector (keccak256 of the canonical signature, EVM convention)
// followed by the ABI-encoded descriptor.
func Encode(req Request, conv Converters) ([]byte, error) {
	if req.Kind == 0 {
		return nil, fmt.Errorf("orderreq: request kind must be set")
	}

	packed, err := descriptorArgs.Pack(
		uint64(req.RequestId),
		uint32(req.PerpetualId),
		uint8(req.Kind),
		uint16(req.OrderId),
		uint8(req.Type),
		conv.Price.ToUnsigned(req.Price),
		conv.Size.ToUnsigned(req.Size),
		uint64(req.ExpiryBlock),
		conv.Leverage.ToUnsigned(req.Leverage),
		req.PostOnly,
		req.FillOrKill,
		req.IOC,
	)
	if err != nil {
		return nil, fmt.Errorf("orderreq: pack descriptor: %w", err)
	}

	selector := crypto.Keccak256([]byte(descriptorSignature))[:4]
	return append(selector, packed...), nil
}
