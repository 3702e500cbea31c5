// Package oracle defines the temperature oracle consumed by settlement and
// ships two adapters: Static (readings set by tests or posted by the
// operator over the API) and OpenMeteo (historical hourly readings over HTTP).
package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atmx/settlement-engine/internal/contract"
)

// ErrUnknownCity is returned when a city name cannot be resolved.
var ErrUnknownCity = errors.New("oracle: unknown city")

// Adapter supplies the realized temperature for a city at the end of a
// draw window. ok is false while no reading exists yet; err reports a
// failure to ask. Both are retryable from the caller's point of view.
type Adapter interface {
	Temperature(ctx context.Context, city contract.CityID, windowEnd time.Time) (milliC int64, ok bool, err error)
}

type readingKey struct {
	city contract.CityID
	at   int64
}

// Static serves readings that were set explicitly.
type Static struct {
	mu       sync.RWMutex
	readings map[readingKey]int64
}

// NewStatic creates an empty static oracle.
func NewStatic() *Static {
	return &Static{readings: make(map[readingKey]int64)}
}

// Set records the reading for city at windowEnd.
func (s *Static) Set(city contract.CityID, windowEnd time.Time, milliC int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[readingKey{city: city, at: windowEnd.Unix()}] = milliC
}

func (s *Static) Temperature(_ context.Context, city contract.CityID, windowEnd time.Time) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.readings[readingKey{city: city, at: windowEnd.Unix()}]
	return v, ok, nil
}
