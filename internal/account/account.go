package account

import (
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

// Account is one exchange participant: balances and open positions.
type Account struct {
	Id            types.AccountId
	Address       common.Address
	Balance       decimal.Decimal
	LockedBalance decimal.Decimal
	Frozen        bool
	Positions     map[types.PerpetualId]*Position
}

// New creates an empty account for address.
func New(id types.AccountId, address common.Address) *Account {
	return &Account{
		Id:            id,
		Address:       address,
		Balance:       decimal.Zero,
		LockedBalance: decimal.Zero,
		Positions:     make(map[types.PerpetualId]*Position),
	}
}

// AvailableBalance is balance minus locked balance, clamped at zero: locked
// balance may legitimately exceed balance on-contract (e.g. after an
// adverse mark-to-market move before liquidation), in which case the
// account simply has nothing available rather than a negative amount.
func (a *Account) AvailableBalance() decimal.Decimal {
	avail := a.Balance.Sub(a.LockedBalance)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Lock moves amount from available into locked balance bookkeeping. It does
// not check sufficiency; the contract is the source of truth for whether a
// lock was permitted, the indexer only replays the resulting balances.
func (a *Account) Lock(amount decimal.Decimal) {
	a.LockedBalance = a.LockedBalance.Add(amount)
}

// Unlock reverses Lock.
func (a *Account) Unlock(amount decimal.Decimal) {
	a.LockedBalance = a.LockedBalance.Sub(amount)
	if a.LockedBalance.IsNegative() {
		a.LockedBalance = decimal.Zero
	}
}

// PositionOrNew returns the account's position on perpId, creating an empty one
// on first access so fill handling can unconditionally mutate it.
func (a *Account) PositionOrNew(perpId types.PerpetualId, positionType types.PositionType) *Position {
	p, ok := a.Positions[perpId]
	if !ok {
		p = &Position{PerpetualId: perpId, AccountId: a.Id, Type: positionType, EntryPrice: decimal.Zero, Size: decimal.Zero}
		a.Positions[perpId] = p
	}
	return p
}

// PruneEmptyPosition destroys the account's position on perpId if its size
// has reached zero, per the Position lifecycle in the data model.
func (a *Account) PruneEmptyPosition(perpId types.PerpetualId) {
	if p, ok := a.Positions[perpId]; ok && p.Empty() {
		delete(a.Positions, perpId)
	}
}

// PositionBitMap is four 256-bit banks covering perpetual ids
// [0,253), [253,509), [509,765), [765,1021); a set bit at offset i within
// bank k denotes a position in perpetual (bankBase[k] + i).
type PositionBitMap [4][4]uint64 // [bank][word], 256 bits per bank as 4 uint64 words

var bankBase = [4]uint32{0, 253, 509, 765}

// PerpetualsWithPosition returns every perpetual id the bitmap marks as
// having an open position, in ascending order.
func (bm PositionBitMap) PerpetualsWithPosition() []types.PerpetualId {
	var out []types.PerpetualId
	for bank := 0; bank < 4; bank++ {
		for word := 0; word < 4; word++ {
			word64 := bm[bank][word]
			for word64 != 0 {
				i := bits.TrailingZeros64(word64)
				word64 &^= 1 << uint(i)
				offset := uint32(word*64 + i)
				out = append(out, types.PerpetualId(bankBase[bank]+offset))
			}
		}
	}
	return out
}
