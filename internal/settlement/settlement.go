// Package settlement finalizes draws from oracle data. A draw has two
// states, Open and Settled; the transition happens once, only after the end
// time, and is never undone.
//
// Winning rule: threshold T wins iff actualTemp > T (strict). Any number of
// thresholds in one draw may win together.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/oracle"
	"github.com/atmx/settlement-engine/internal/registry"
)

var (
	// ErrDrawNotEnded is returned when settling before the end time.
	ErrDrawNotEnded = errors.New("settlement: draw has not ended")

	// ErrOracleDataUnavailable is returned when the oracle has no reading
	// yet or cannot be reached. The draw stays open and settle may be
	// retried by anyone.
	ErrOracleDataUnavailable = errors.New("settlement: oracle data unavailable")
)

// IsWinning reports whether threshold t wins for the realized temperature.
func IsWinning(actualTemp, t int64) bool {
	return actualTemp > t
}

// WinningThresholds returns the winning subset of a settled draw's
// thresholds, in order. It returns nil for open draws.
func WinningThresholds(d *model.Draw) []int64 {
	if !d.Settled {
		return nil
	}
	var out []int64
	for _, t := range d.Thresholds {
		if IsWinning(d.ActualTemp, t) {
			out = append(out, t)
		}
	}
	return out
}

// Settler resolves draws against an oracle.
type Settler struct {
	oracle oracle.Adapter
}

// New creates a settler backed by the given oracle.
func New(o oracle.Adapter) *Settler {
	return &Settler{oracle: o}
}

// Check validates the state-machine preconditions for settling d at now.
func Check(d *model.Draw, now time.Time) error {
	if d.Settled {
		return fmt.Errorf("%w: draw %d", registry.ErrDrawAlreadySettled, d.ID)
	}
	if now.Before(d.EndTime) {
		return fmt.Errorf("%w: draw %d ends at %s", ErrDrawNotEnded, d.ID, d.EndTime.Format(time.RFC3339))
	}
	return nil
}

// Resolve checks preconditions and asks the oracle for the realized
// temperature of the draw's city at its end time. It performs no writes.
func (s *Settler) Resolve(ctx context.Context, d *model.Draw, now time.Time) (int64, error) {
	if err := Check(d, now); err != nil {
		return 0, err
	}
	temp, ok, err := s.oracle.Temperature(ctx, d.CityID, d.EndTime)
	if err != nil {
		return 0, fmt.Errorf("%w: draw %d: %v", ErrOracleDataUnavailable, d.ID, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: no reading for %s at %s", ErrOracleDataUnavailable,
			d.CityID.Name(), d.EndTime.Format(time.RFC3339))
	}
	return temp, nil
}

// Apply performs the Open → Settled transition with the resolved reading.
func Apply(r *registry.Registry, drawID uint64, actualTemp int64, at time.Time) error {
	return r.MarkSettled(drawID, actualTemp, at)
}
