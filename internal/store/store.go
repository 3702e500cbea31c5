// Package store defines the persistence interface for the settlement engine
// journal. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/settlement-engine/internal/model"
)

// ErrSeqConflict is returned when appending an entry whose sequence number
// is not exactly one past the last stored entry.
var ErrSeqConflict = errors.New("store: journal sequence conflict")

// Store is the append-only journal. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// AppendEntry appends an immutable journal record. Entries must be
	// appended in strictly increasing Seq order without gaps.
	AppendEntry(ctx context.Context, entry *model.LedgerEntry) error

	// ListEntries returns all entries with Seq > afterSeq in Seq order.
	ListEntries(ctx context.Context, afterSeq int64) ([]model.LedgerEntry, error)

	// GetEntriesByDraw returns all entries that touch a draw, including
	// rollovers into it.
	GetEntriesByDraw(ctx context.Context, drawID uint64) ([]model.LedgerEntry, error)

	// GetEntriesByAccount returns all entries where the account is the
	// actor or the counterparty.
	GetEntriesByAccount(ctx context.Context, account common.Address) ([]model.LedgerEntry, error)
}

func touchesDraw(e *model.LedgerEntry, drawID uint64) bool {
	return e.DrawID == drawID || e.TargetDrawID == drawID
}

func touchesAccount(e *model.LedgerEntry, account common.Address) bool {
	return e.Actor == account || e.Account == account
}
