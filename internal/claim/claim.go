// Package claim pays each winning staker their share of a settled draw's
// pot, at most once per (draw, user).
//
//	payout = floor(pot * userWinningShares / totalWinningShares)
//
// where both sums run over the draw's winning thresholds. Rounding dust
// stays in custody; it is never redistributed.
package claim

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/settlement"
	"github.com/atmx/settlement-engine/internal/stake"
	"github.com/atmx/settlement-engine/internal/vault"
)

var (
	ErrDrawNotSettled = errors.New("claim: draw not settled")
	ErrAlreadyClaimed = errors.New("claim: already claimed")
	ErrNoWinningStake = errors.New("claim: no winning stake")

	// ErrPotNotRollable is returned when rolling over the pot of a draw
	// that is unsettled, had winners, or has an empty pot.
	ErrPotNotRollable = errors.New("claim: pot cannot be rolled over")
)

type claimKey struct {
	drawID uint64
	user   common.Address
}

// Processor holds claim records and per-draw paid totals. Not safe for
// concurrent use; the engine serializes access.
type Processor struct {
	claimed map[claimKey]bool
	paid    map[uint64]decimal.Decimal
}

// New creates an empty claim processor.
func New() *Processor {
	return &Processor{
		claimed: make(map[claimKey]bool),
		paid:    make(map[uint64]decimal.Decimal),
	}
}

// Claimed reports whether user has claimed draw drawID.
func (p *Processor) Claimed(drawID uint64, user common.Address) bool {
	return p.claimed[claimKey{drawID: drawID, user: user}]
}

// Paid returns the total paid out for a draw so far.
func (p *Processor) Paid(drawID uint64) decimal.Decimal {
	return p.paid[drawID]
}

// Quote validates a claim and computes the payout without writing.
func (p *Processor) Quote(d *model.Draw, l *stake.Ledger, user common.Address) (model.Payout, error) {
	if !d.Settled {
		return model.Payout{}, fmt.Errorf("%w: draw %d", ErrDrawNotSettled, d.ID)
	}
	if p.Claimed(d.ID, user) {
		return model.Payout{}, fmt.Errorf("%w: draw %d by %s", ErrAlreadyClaimed, d.ID, user.Hex())
	}

	winning := settlement.WinningThresholds(d)
	userShares := l.SumUser(d.ID, user, winning)
	if userShares.IsZero() {
		return model.Payout{}, fmt.Errorf("%w: draw %d by %s", ErrNoWinningStake, d.ID, user.Hex())
	}
	total := l.SumTotals(d.ID, winning)

	return model.Payout{
		DrawID:        d.ID,
		Account:       user,
		WinningShares: userShares,
		TotalWinning:  total,
		Amount:        vault.MulDivDown(d.Pot, userShares, total),
	}, nil
}

// Apply records the claim and then performs the transfer. The claim record
// is written first and is never reset, so a re-entrant or repeated call can
// not pay twice.
func (p *Processor) Apply(drawID uint64, user common.Address, amount decimal.Decimal, transfer func(decimal.Decimal) error) error {
	key := claimKey{drawID: drawID, user: user}
	if p.claimed[key] {
		return fmt.Errorf("%w: draw %d by %s", ErrAlreadyClaimed, drawID, user.Hex())
	}
	p.claimed[key] = true
	p.paid[drawID] = p.paid[drawID].Add(amount)

	if amount.IsZero() {
		return nil
	}
	return transfer(amount)
}

// CheckRollover validates moving the pot of a settled draw that had no
// winning stakes.
func CheckRollover(d *model.Draw, l *stake.Ledger) error {
	if !d.Settled {
		return fmt.Errorf("%w: draw %d is not settled", ErrPotNotRollable, d.ID)
	}
	if !l.SumTotals(d.ID, settlement.WinningThresholds(d)).IsZero() {
		return fmt.Errorf("%w: draw %d has winning stakes", ErrPotNotRollable, d.ID)
	}
	if !d.Pot.IsPositive() {
		return fmt.Errorf("%w: draw %d pot is empty", ErrPotNotRollable, d.ID)
	}
	return nil
}
