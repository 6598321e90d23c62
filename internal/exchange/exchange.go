// Package exchange implements the state machine: the heart of the module.
// Exchange.ApplyEvents replays one block's raw events onto accounts,
// perpetuals, and order books, emitting derived state events.
package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/account"
	"github.com/openperp/indexer/internal/convert"
	"github.com/openperp/indexer/internal/perpetual"
	"github.com/openperp/indexer/internal/types"
)

// Params holds the global, rarely-changing exchange parameters.
type Params struct {
	FundingIntervalBlocks uint64
	MinPost               decimal.Decimal
	MinSettle             decimal.Decimal
	RecycleFee            decimal.Decimal
}

// Exchange is the full in-memory replica of on-chain exchange state.
type Exchange struct {
	ChainId             uint64
	CollateralConverter convert.Converter
	Params              Params

	Accounts   map[types.AccountId]*account.Account
	Perpetuals map[types.PerpetualId]*perpetual.Perpetual

	IsHalted bool
	Instant  types.StateInstant

	scratch txScratch
}

// New builds an empty exchange seeded at the given instant (typically the
// instant a Snapshot Builder recorded, or the zero instant for a fresh
// exchange that will be driven entirely by streamed blocks from genesis).
func New(chainId uint64, collateralConverter convert.Converter, params Params, at types.StateInstant) *Exchange {
	return &Exchange{
		ChainId:             chainId,
		CollateralConverter: collateralConverter,
		Params:              params,
		Accounts:            make(map[types.AccountId]*account.Account),
		Perpetuals:          make(map[types.PerpetualId]*perpetual.Perpetual),
		Instant:             at,
	}
}

// AddPerpetual registers a tracked perpetual. Used by the Snapshot Builder
// and by tests; the stream path never introduces a new perpetual id that
// wasn't part of the initial tracked set.
func (e *Exchange) AddPerpetual(p *perpetual.Perpetual) {
	e.Perpetuals[p.Id] = p
}

// AddAccount registers a tracked account.
func (e *Exchange) AddAccount(a *account.Account) {
	e.Accounts[a.Id] = a
}

func (e *Exchange) account(id types.AccountId) (*account.Account, error) {
	a, ok := e.Accounts[id]
	if !ok {
		return nil, &types.AccountNotFoundError{Account: id}
	}
	return a, nil
}

func (e *Exchange) perp(id types.PerpetualId) (*perpetual.Perpetual, error) {
	p, ok := e.Perpetuals[id]
	if !ok {
		return nil, &types.PerpetualNotFoundError{Perpetual: id}
	}
	return p, nil
}
