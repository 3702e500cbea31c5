// Package limit enforces per-user stake caps on draws.
//
// Thresholds of one draw are nested events (beating 22 °C implies beating
// 21 °C), so a user's stakes across a draw are fully correlated. The limiter
// caps both the stake on any single threshold and the aggregate stake across
// the whole draw.
package limit

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerThresholdLimitExceeded is returned when a bid would push a
	// user's stake on one threshold beyond the per-threshold maximum.
	ErrPerThresholdLimitExceeded = errors.New("limit: per-threshold stake limit exceeded")

	// ErrPerDrawLimitExceeded is returned when a bid would push a user's
	// aggregate stake across a draw beyond the per-draw maximum.
	ErrPerDrawLimitExceeded = errors.New("limit: per-draw stake limit exceeded")
)

// StakeLimiter caps user stakes. A zero limit disables that cap.
type StakeLimiter struct {
	// MaxPerThreshold is the maximum cumulative stake of one user on one
	// threshold.
	MaxPerThreshold decimal.Decimal

	// MaxPerDraw is the maximum cumulative stake of one user across all
	// thresholds of one draw.
	MaxPerDraw decimal.Decimal
}

// NewStakeLimiter creates a limiter. Negative limits are treated as zero
// (disabled).
func NewStakeLimiter(maxPerThreshold, maxPerDraw decimal.Decimal) *StakeLimiter {
	if maxPerThreshold.IsNegative() {
		maxPerThreshold = decimal.Zero
	}
	if maxPerDraw.IsNegative() {
		maxPerDraw = decimal.Zero
	}
	return &StakeLimiter{
		MaxPerThreshold: maxPerThreshold,
		MaxPerDraw:      maxPerDraw,
	}
}

// Enabled reports whether any cap is active.
func (l *StakeLimiter) Enabled() bool {
	return l != nil && (l.MaxPerThreshold.IsPositive() || l.MaxPerDraw.IsPositive())
}

// CheckLimit validates whether a bid respects the caps.
//
// Parameters:
//   - threshold: the threshold being staked on
//   - delta: the additional stake
//   - existing: threshold → the user's current stake in this draw
//
// Returns nil if the bid is within limits.
func (l *StakeLimiter) CheckLimit(threshold int64, delta decimal.Decimal, existing map[int64]decimal.Decimal) error {
	if !l.Enabled() {
		return nil
	}

	// 1. Per-threshold limit.
	newStake := existing[threshold].Add(delta)
	if l.MaxPerThreshold.IsPositive() && newStake.GreaterThan(l.MaxPerThreshold) {
		return fmt.Errorf("%w: %s > %s on %d", ErrPerThresholdLimitExceeded, newStake, l.MaxPerThreshold, threshold)
	}

	// 2. Aggregate across the draw.
	total := newStake
	for t, s := range existing {
		if t == threshold {
			continue // already counted via newStake above
		}
		total = total.Add(s)
	}
	if l.MaxPerDraw.IsPositive() && total.GreaterThan(l.MaxPerDraw) {
		return fmt.Errorf("%w: %s > %s", ErrPerDrawLimitExceeded, total, l.MaxPerDraw)
	}

	return nil
}
