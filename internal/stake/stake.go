// Package stake records per-user, per-threshold ticket stakes and the
// running per-threshold totals for each draw. Stakes are purely additive:
// there is no netting and no withdrawal.
package stake

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/vault"
)

var (
	// ErrDrawClosed is returned for bids at or after the end time, or on a
	// settled draw.
	ErrDrawClosed = errors.New("stake: draw is closed for bidding")

	// ErrInvalidThreshold is returned when the threshold is not one of the
	// draw's thresholds.
	ErrInvalidThreshold = errors.New("stake: threshold not offered by draw")

	// ErrInsufficientTicketBalance is returned when the bidder holds fewer
	// tickets than the stake.
	ErrInsufficientTicketBalance = errors.New("stake: insufficient ticket balance")
)

type stakeKey struct {
	drawID    uint64
	user      common.Address
	threshold int64
}

type totalKey struct {
	drawID    uint64
	threshold int64
}

// Ledger holds stakes and threshold totals. Not safe for concurrent use;
// the engine serializes access.
type Ledger struct {
	stakes map[stakeKey]decimal.Decimal
	totals map[totalKey]decimal.Decimal
}

// New creates an empty stake ledger.
func New() *Ledger {
	return &Ledger{
		stakes: make(map[stakeKey]decimal.Decimal),
		totals: make(map[totalKey]decimal.Decimal),
	}
}

// IsOpen reports whether the draw accepts bids at now.
func IsOpen(d *model.Draw, now time.Time) bool {
	return !d.Settled && now.Before(d.EndTime)
}

// CheckBid validates a placeBid call against the draw and the bidder's
// current ticket balance.
func (l *Ledger) CheckBid(d *model.Draw, threshold int64, shares, balance decimal.Decimal, now time.Time) error {
	if !IsOpen(d, now) {
		if d.Settled {
			return fmt.Errorf("%w: draw %d is settled", ErrDrawClosed, d.ID)
		}
		return fmt.Errorf("%w: draw %d ended at %s", ErrDrawClosed, d.ID, d.EndTime.Format(time.RFC3339))
	}
	if !d.HasThreshold(threshold) {
		return fmt.Errorf("%w: %d not in draw %d", ErrInvalidThreshold, threshold, d.ID)
	}
	if err := vault.CheckAmount(shares); err != nil {
		return err
	}
	if balance.LessThan(shares) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientTicketBalance, balance, shares)
	}
	return nil
}

// ApplyBid adds shares to the user's stake and the threshold total.
func (l *Ledger) ApplyBid(drawID uint64, user common.Address, threshold int64, shares decimal.Decimal) {
	sk := stakeKey{drawID: drawID, user: user, threshold: threshold}
	tk := totalKey{drawID: drawID, threshold: threshold}
	l.stakes[sk] = l.stakes[sk].Add(shares)
	l.totals[tk] = l.totals[tk].Add(shares)
}

// TotalShares returns the sum of all stakes on one threshold.
func (l *Ledger) TotalShares(drawID uint64, threshold int64) decimal.Decimal {
	return l.totals[totalKey{drawID: drawID, threshold: threshold}]
}

// UserShares returns one user's stake on one threshold.
func (l *Ledger) UserShares(drawID uint64, user common.Address, threshold int64) decimal.Decimal {
	return l.stakes[stakeKey{drawID: drawID, user: user, threshold: threshold}]
}

// SumTotals returns Σ TotalShares over the given thresholds.
func (l *Ledger) SumTotals(drawID uint64, thresholds []int64) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range thresholds {
		sum = sum.Add(l.TotalShares(drawID, t))
	}
	return sum
}

// SumUser returns Σ UserShares over the given thresholds.
func (l *Ledger) SumUser(drawID uint64, user common.Address, thresholds []int64) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range thresholds {
		sum = sum.Add(l.UserShares(drawID, user, t))
	}
	return sum
}
