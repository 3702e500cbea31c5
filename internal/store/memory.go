package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/settlement-engine/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	ledger []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendEntry(_ context.Context, e *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if want := int64(len(s.ledger)) + 1; e.Seq != want {
		return fmt.Errorf("%w: got seq %d, want %d", ErrSeqConflict, e.Seq, want)
	}
	s.ledger = append(s.ledger, cloneEntry(e))
	return nil
}

func (s *MemoryStore) ListEntries(_ context.Context, afterSeq int64) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if afterSeq < 0 {
		afterSeq = 0
	}
	var entries []model.LedgerEntry
	for i := afterSeq; i < int64(len(s.ledger)); i++ {
		entries = append(entries, cloneEntry(&s.ledger[i]))
	}
	return entries, nil
}

func (s *MemoryStore) GetEntriesByDraw(_ context.Context, drawID uint64) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []model.LedgerEntry
	for i := range s.ledger {
		if touchesDraw(&s.ledger[i], drawID) {
			entries = append(entries, cloneEntry(&s.ledger[i]))
		}
	}
	return entries, nil
}

func (s *MemoryStore) GetEntriesByAccount(_ context.Context, account common.Address) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []model.LedgerEntry
	for i := range s.ledger {
		if touchesAccount(&s.ledger[i], account) {
			entries = append(entries, cloneEntry(&s.ledger[i]))
		}
	}
	return entries, nil
}

// cloneEntry copies an entry so callers cannot mutate stored state.
func cloneEntry(e *model.LedgerEntry) model.LedgerEntry {
	c := *e
	if e.Thresholds != nil {
		c.Thresholds = make([]int64, len(e.Thresholds))
		copy(c.Thresholds, e.Thresholds)
	}
	return c
}
