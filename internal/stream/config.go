package stream

import (
	"github.com/openperp/indexer/internal/convert"
	"github.com/openperp/indexer/internal/types"
)

// PerpetualConverters are the scales a raw contract event for one perpetual
// must be read through: price/size per the perpetual's own decimals, leverage
// and fee at the contract's fixed LeverageScale/FeeScale (§4.1).
type PerpetualConverters struct {
	Price, Size, Leverage, Fee convert.Converter
}

// NormalizationConfig is the prefetched set of converters both the raw
// stream's decoder and the derived trade stream need to turn raw contract
// integers into decimals, named to match §4.6's "parameterized by a
// prefetched NormalizationConfig" wording.
type NormalizationConfig struct {
	CollateralConverter convert.Converter
	Perpetuals          map[types.PerpetualId]PerpetualConverters
}

func (c NormalizationConfig) forPerpetual(id types.PerpetualId) (PerpetualConverters, bool) {
	pc, ok := c.Perpetuals[id]
	return pc, ok
}
