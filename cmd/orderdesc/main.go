// Command orderdesc encodes an order request into the raw calldata the
// contract's submission call expects, for inspecting or hand-submitting a
// request without going through a wallet frontend.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/convert"
	"github.com/openperp/indexer/internal/orderreq"
	"github.com/openperp/indexer/internal/types"
)

func main() {
	var (
		kind        = flag.String("kind", "place", "request kind: place, cancel, change")
		requestId   = flag.Uint64("request-id", 0, "request id")
		perpetualId = flag.Uint("perpetual-id", 0, "perpetual id")
		orderId     = flag.Uint("order-id", 0, "order id (cancel/change only)")
		side        = flag.String("side", "open-long", "order side: open-long, open-short, close-long, close-short (place only)")
		price       = flag.String("price", "0", "limit price (place/change only)")
		size        = flag.String("size", "0", "order size (place/change only)")
		leverage    = flag.String("leverage", "1", "leverage (place only)")
		expiryBlock = flag.Uint64("expiry-block", 0, "expiry block, 0 for none")
		postOnly    = flag.Bool("post-only", false, "reject instead of taking liquidity")
		fillOrKill  = flag.Bool("fill-or-kill", false, "cancel instead of resting any unfilled remainder")
		ioc         = flag.Bool("ioc", false, "immediate-or-cancel")
		priceScale  = flag.Uint("price-decimals", 2, "perpetual's price decimals")
		sizeScale   = flag.Uint("size-decimals", 8, "perpetual's size decimals")
	)
	flag.Parse()

	reqKind, err := parseKind(*kind)
	if err != nil {
		fail(err)
	}
	orderType, err := parseSide(*side)
	if err != nil {
		fail(err)
	}

	req := orderreq.Request{
		RequestId:   types.RequestId(*requestId),
		PerpetualId: types.PerpetualId(*perpetualId),
		Kind:        reqKind,
		OrderId:     types.OrderId(*orderId),
		Type:        orderType,
		Price:       decimal.RequireFromString(*price),
		Size:        decimal.RequireFromString(*size),
		ExpiryBlock: types.BlockNumber(*expiryBlock),
		PostOnly:    *postOnly,
		FillOrKill:  *fillOrKill,
		IOC:         *ioc,
		Leverage:    decimal.RequireFromString(*leverage),
	}

	conv := orderreq.Converters{
		Price:    convert.New(uint8(*priceScale)),
		Size:     convert.New(uint8(*sizeScale)),
		Leverage: convert.New(2),
	}

	data, err := orderreq.Encode(req, conv)
	if err != nil {
		fail(err)
	}

	fmt.Printf("kind:          %s\n", *kind)
	fmt.Printf("request id:    %d\n", req.RequestId)
	fmt.Printf("perpetual id:  %d\n", req.PerpetualId)
	fmt.Printf("calldata:      0x%s\n", hex.EncodeToString(data))
}

func parseKind(s string) (orderreq.Kind, error) {
	switch s {
	case "place":
		return orderreq.Place, nil
	case "cancel":
		return orderreq.Cancel, nil
	case "change":
		return orderreq.Change, nil
	default:
		return 0, fmt.Errorf("unknown kind %q (want place, cancel, or change)", s)
	}
}

func parseSide(s string) (types.OrderType, error) {
	switch s {
	case "open-long":
		return types.OpenLong, nil
	case "open-short":
		return types.OpenShort, nil
	case "close-long":
		return types.CloseLong, nil
	case "close-short":
		return types.CloseShort, nil
	default:
		return 0, fmt.Errorf("unknown side %q (want open-long, open-short, close-long, or close-short)", s)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
