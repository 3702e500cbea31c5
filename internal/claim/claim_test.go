package claim

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/stake"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

var (
	userA = common.HexToAddress("0xa")
	userB = common.HexToAddress("0xb")
	userC = common.HexToAddress("0xc")
)

func settledDraw(pot int64, actual int64) *model.Draw {
	return &model.Draw{
		ID:         1,
		Thresholds: []int64{20000, 21000, 22000},
		Settled:    true,
		ActualTemp: actual,
		Pot:        d(pot),
	}
}

func TestQuote_Scenario(t *testing.T) {
	l := stake.New()
	l.ApplyBid(1, userA, 20000, d(100))
	l.ApplyBid(1, userB, 22000, d(300))
	p := New()
	draw := settledDraw(1000, 21500)

	payout, err := p.Quote(draw, l, userA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only A staked on a winning threshold: A takes the whole pot.
	if !payout.Amount.Equal(d(1000)) {
		t.Errorf("expected payout 1000, got %s", payout.Amount)
	}
	if !payout.TotalWinning.Equal(d(100)) {
		t.Errorf("expected total winning 100, got %s", payout.TotalWinning)
	}

	if _, err := p.Quote(draw, l, userB); !errors.Is(err, ErrNoWinningStake) {
		t.Errorf("expected ErrNoWinningStake for B, got %v", err)
	}
}

func TestQuote_CombinedShareTotal(t *testing.T) {
	l := stake.New()
	l.ApplyBid(1, userA, 20000, d(100))
	l.ApplyBid(1, userB, 21000, d(200))
	l.ApplyBid(1, userC, 22000, d(700)) // losing
	p := New()
	draw := settledDraw(1000, 21500)

	a, err := p.Quote(draw, l, userA)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Quote(draw, l, userB)
	if err != nil {
		t.Fatal(err)
	}
	// 1000*100/300 = 333, 1000*200/300 = 666
	if !a.Amount.Equal(d(333)) || !b.Amount.Equal(d(666)) {
		t.Errorf("expected 333/666, got %s/%s", a.Amount, b.Amount)
	}
	dust := draw.Pot.Sub(a.Amount).Sub(b.Amount)
	if dust.IsNegative() || dust.GreaterThan(d(300)) {
		t.Errorf("dust out of bounds: %s", dust)
	}
}

func TestQuote_NotSettled(t *testing.T) {
	draw := settledDraw(10, 0)
	draw.Settled = false
	if _, err := New().Quote(draw, stake.New(), userA); !errors.Is(err, ErrDrawNotSettled) {
		t.Errorf("expected ErrDrawNotSettled, got %v", err)
	}
}

func TestApply_OnceOnly(t *testing.T) {
	p := New()
	var transfers int
	pay := func(decimal.Decimal) error {
		transfers++
		return nil
	}

	if err := p.Apply(1, userA, d(50), pay); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := p.Apply(1, userA, d(50), pay); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
	if transfers != 1 {
		t.Errorf("expected exactly one transfer, got %d", transfers)
	}
	if !p.Paid(1).Equal(d(50)) {
		t.Errorf("expected paid 50, got %s", p.Paid(1))
	}
}

func TestApply_RecordBeforeTransfer(t *testing.T) {
	p := New()
	var reentered error
	pay := func(decimal.Decimal) error {
		if !p.Claimed(1, userA) {
			t.Error("claim record must be written before the transfer")
		}
		// A re-entrant claim from inside the transfer must be refused.
		reentered = p.Apply(1, userA, d(10), func(decimal.Decimal) error { return nil })
		return nil
	}
	if err := p.Apply(1, userA, d(10), pay); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(reentered, ErrAlreadyClaimed) {
		t.Errorf("re-entrant claim: expected ErrAlreadyClaimed, got %v", reentered)
	}
}

func TestQuote_AfterClaim(t *testing.T) {
	l := stake.New()
	l.ApplyBid(1, userA, 20000, d(1))
	p := New()
	draw := settledDraw(10, 21500)

	_ = p.Apply(1, userA, d(10), func(decimal.Decimal) error { return nil })
	if _, err := p.Quote(draw, l, userA); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestCheckRollover(t *testing.T) {
	l := stake.New()
	l.ApplyBid(1, userB, 22000, d(300))

	noWinners := settledDraw(1000, 21500)
	if err := CheckRollover(noWinners, l); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	l.ApplyBid(1, userA, 20000, d(1))
	if err := CheckRollover(noWinners, l); !errors.Is(err, ErrPotNotRollable) {
		t.Errorf("draw with winners: expected ErrPotNotRollable, got %v", err)
	}

	open := settledDraw(1000, 0)
	open.Settled = false
	if err := CheckRollover(open, stake.New()); !errors.Is(err, ErrPotNotRollable) {
		t.Errorf("open draw: expected ErrPotNotRollable, got %v", err)
	}

	empty := settledDraw(0, 21500)
	if err := CheckRollover(empty, stake.New()); !errors.Is(err, ErrPotNotRollable) {
		t.Errorf("empty pot: expected ErrPotNotRollable, got %v", err)
	}
}
