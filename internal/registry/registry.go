// Package registry owns the catalog of draws: city, end time, threshold
// set, pot and settlement status. Draw ids are assigned monotonically from
// 1 and draws are never deleted.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/model"
)

var (
	ErrUnauthorized       = errors.New("registry: caller is not the operator")
	ErrInvalidEndTime     = errors.New("registry: end time must be in the future")
	ErrInvalidThresholds  = errors.New("registry: thresholds must be non-empty and strictly increasing")
	ErrDrawNotFound       = errors.New("registry: draw not found")
	ErrDrawAlreadySettled = errors.New("registry: draw already settled")
	ErrInvalidCityID      = errors.New("registry: city id must not be empty")
)

// Registry is the in-memory draw catalog. Not safe for concurrent use; the
// engine serializes access.
type Registry struct {
	operator common.Address
	draws    map[uint64]*model.Draw
	nextID   uint64
}

// New creates a registry whose draws can only be created by operator.
func New(operator common.Address) *Registry {
	return &Registry{
		operator: operator,
		draws:    make(map[uint64]*model.Draw),
		nextID:   1,
	}
}

// NextID returns the id the next created draw will receive.
func (r *Registry) NextID() uint64 {
	return r.nextID
}

// ValidateThresholds checks that the threshold list is non-empty and
// strictly increasing.
func ValidateThresholds(thresholds []int64) error {
	if len(thresholds) == 0 {
		return fmt.Errorf("%w: empty list", ErrInvalidThresholds)
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return fmt.Errorf("%w: %d follows %d", ErrInvalidThresholds, thresholds[i], thresholds[i-1])
		}
	}
	return nil
}

// CheckCreate validates a createDraw call.
func (r *Registry) CheckCreate(caller common.Address, city contract.CityID, endTime time.Time, thresholds []int64, now time.Time) error {
	if caller != r.operator {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if city.IsZero() {
		return ErrInvalidCityID
	}
	if !endTime.After(now) {
		return fmt.Errorf("%w: %s is not after %s", ErrInvalidEndTime,
			endTime.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return ValidateThresholds(thresholds)
}

// ApplyCreate stores a new draw under the next id and returns it.
func (r *Registry) ApplyCreate(city contract.CityID, endTime time.Time, thresholds []int64, now time.Time) *model.Draw {
	ts := make([]int64, len(thresholds))
	copy(ts, thresholds)

	d := &model.Draw{
		ID:         r.nextID,
		CityID:     city,
		EndTime:    endTime.UTC(),
		Thresholds: ts,
		Pot:        decimal.Zero,
		CreatedAt:  now.UTC(),
	}
	r.draws[d.ID] = d
	r.nextID++
	return d
}

// CheckFund validates a fundPot call.
func (r *Registry) CheckFund(drawID uint64) error {
	d, err := r.get(drawID)
	if err != nil {
		return err
	}
	if d.Settled {
		return fmt.Errorf("%w: draw %d", ErrDrawAlreadySettled, drawID)
	}
	return nil
}

// ApplyFund adds amount to the draw's pot.
func (r *Registry) ApplyFund(drawID uint64, amount decimal.Decimal) {
	if d, ok := r.draws[drawID]; ok {
		d.Pot = d.Pot.Add(amount)
	}
}

// ApplyDrain zeroes the draw's pot and returns the previous value.
func (r *Registry) ApplyDrain(drawID uint64) decimal.Decimal {
	d, ok := r.draws[drawID]
	if !ok {
		return decimal.Zero
	}
	pot := d.Pot
	d.Pot = decimal.Zero
	return pot
}

// MarkSettled performs the one-way Open → Settled transition. It fails
// without writing if the draw is already settled.
func (r *Registry) MarkSettled(drawID uint64, actualTemp int64, at time.Time) error {
	d, err := r.get(drawID)
	if err != nil {
		return err
	}
	if d.Settled {
		return fmt.Errorf("%w: draw %d", ErrDrawAlreadySettled, drawID)
	}
	settledAt := at.UTC()
	d.ActualTemp = actualTemp
	d.Settled = true
	d.SettledAt = &settledAt
	return nil
}

// Lookup returns the live draw for read access by sibling components.
// Callers must not mutate it.
func (r *Registry) Lookup(drawID uint64) (*model.Draw, error) {
	return r.get(drawID)
}

// GetDraw returns a copy of the draw.
func (r *Registry) GetDraw(drawID uint64) (*model.Draw, error) {
	d, err := r.get(drawID)
	if err != nil {
		return nil, err
	}
	return clone(d), nil
}

// GetThresholds returns a copy of the draw's threshold set.
func (r *Registry) GetThresholds(drawID uint64) ([]int64, error) {
	d, err := r.get(drawID)
	if err != nil {
		return nil, err
	}
	ts := make([]int64, len(d.Thresholds))
	copy(ts, d.Thresholds)
	return ts, nil
}

// ListDraws returns copies of all draws ordered by id.
func (r *Registry) ListDraws() []model.Draw {
	draws := make([]model.Draw, 0, len(r.draws))
	for _, d := range r.draws {
		draws = append(draws, *clone(d))
	}
	sort.Slice(draws, func(i, j int) bool { return draws[i].ID < draws[j].ID })
	return draws
}

func (r *Registry) get(drawID uint64) (*model.Draw, error) {
	d, ok := r.draws[drawID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDrawNotFound, drawID)
	}
	return d, nil
}

func clone(d *model.Draw) *model.Draw {
	c := *d
	c.Thresholds = make([]int64, len(d.Thresholds))
	copy(c.Thresholds, d.Thresholds)
	if d.SettledAt != nil {
		t := *d.SettledAt
		c.SettledAt = &t
	}
	return &c
}
