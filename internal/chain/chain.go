// Package chain holds the static description of which contract and which
// perpetuals an indexer instance tracks, folded in from the original
// implementation's Chain configuration (SPEC_FULL.md §2c) rather than left
// as loose parameters threaded through the Snapshot Builder and cmd/indexer.
package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

// PerpetualSeed is the static metadata needed to register a perpetual before
// its mutable market data is fetched.
type PerpetualSeed struct {
	Id                          types.PerpetualId
	Name, Symbol                string
	PriceDecimals, SizeDecimals uint8
	BasePrice                   decimal.Decimal
}

// Chain is the fixed description of one exchange deployment: which contract,
// on which chain, tracking which perpetuals from which block onward.
type Chain struct {
	ChainId            uint64
	ContractAddress    common.Address
	CollateralAddress  common.Address
	DeploymentBlock    types.BlockNumber
	Perpetuals         []PerpetualSeed
}
