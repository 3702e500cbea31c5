package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/settlement-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the per-draw and per-account history views. Appends go to the
// primary store and invalidate the affected keys; reads check Redis first
// then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) AppendEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := s.primary.AppendEntry(ctx, entry); err != nil {
		return err
	}
	keys := []string{accountKey(entry.Actor), accountKey(entry.Account)}
	if entry.DrawID != 0 {
		keys = append(keys, drawKey(entry.DrawID))
	}
	if entry.TargetDrawID != 0 {
		keys = append(keys, drawKey(entry.TargetDrawID))
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, keys...)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetEntriesByDraw(ctx context.Context, drawID uint64) ([]model.LedgerEntry, error) {
	return s.readThrough(ctx, drawKey(drawID), func() ([]model.LedgerEntry, error) {
		return s.primary.GetEntriesByDraw(ctx, drawID)
	})
}

func (s *CachedStore) GetEntriesByAccount(ctx context.Context, account common.Address) ([]model.LedgerEntry, error) {
	return s.readThrough(ctx, accountKey(account), func() ([]model.LedgerEntry, error) {
		return s.primary.GetEntriesByAccount(ctx, account)
	})
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListEntries(ctx context.Context, afterSeq int64) ([]model.LedgerEntry, error) {
	return s.primary.ListEntries(ctx, afterSeq)
}

// --- Cache helpers ---

func (s *CachedStore) readThrough(ctx context.Context, key string, load func() ([]model.LedgerEntry, error)) ([]model.LedgerEntry, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var entries []model.LedgerEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	// Cache miss: read from primary.
	entries, err := load()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return entries, nil
}

func drawKey(id uint64) string           { return fmt.Sprintf("history:draw:%d", id) }
func accountKey(a common.Address) string { return fmt.Sprintf("history:account:%s", a.Hex()) }
