package account

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/openperp/indexer/internal/types"
)

var alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")

func TestAvailableBalanceClampsAtZero(t *testing.T) {
	a := New(1, alice)
	a.Balance = decimal.NewFromInt(100)
	a.LockedBalance = decimal.NewFromInt(150)

	if !a.AvailableBalance().IsZero() {
		t.Errorf("expected clamped-zero available balance, got %s", a.AvailableBalance())
	}
}

func TestAvailableBalanceNormal(t *testing.T) {
	a := New(1, alice)
	a.Balance = decimal.NewFromInt(100)
	a.LockedBalance = decimal.NewFromInt(40)

	if got, want := a.AvailableBalance(), decimal.NewFromInt(60); !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestPositionApplyFillSameSideVWAP(t *testing.T) {
	p := &Position{Type: types.Long, EntryPrice: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}
	p.ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(200), true)

	if !p.Size.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected size 2, got %s", p.Size)
	}
	if !p.EntryPrice.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected VWAP entry 150, got %s", p.EntryPrice)
	}
}

func TestPositionApplyFillReduceRealizesPnl(t *testing.T) {
	p := &Position{Type: types.Long, EntryPrice: decimal.NewFromInt(100), Size: decimal.NewFromInt(2)}
	p.ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(110), false)

	if !p.Size.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected size 1, got %s", p.Size)
	}
	if !p.DeltaPnl.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected delta pnl 10, got %s", p.DeltaPnl)
	}
}

func TestPositionBitMapPerpetualsWithPosition(t *testing.T) {
	var bm PositionBitMap
	bm[0][0] = 1 << 3 // perpetual 3
	bm[1][0] = 1 << 0 // perpetual 253
	bm[3][3] = 1 << 1 // perpetual 765 + 3*64+1 = 765+193 = 958

	got := bm.PerpetualsWithPosition()
	want := []types.PerpetualId{3, 253, 958}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}
