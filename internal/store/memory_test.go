package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func entry(seq int64, kind model.EntryKind, actor, account common.Address, drawID uint64) *model.LedgerEntry {
	return &model.LedgerEntry{
		Seq:       seq,
		ID:        "entry",
		Kind:      kind,
		Actor:     actor,
		Account:   account,
		DrawID:    drawID,
		Amount:    decimal.NewFromInt(seq * 10),
		Timestamp: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore_AppendAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i, e := range []*model.LedgerEntry{
		entry(1, model.KindAssetCredit, alice, alice, 0),
		entry(2, model.KindDrawCreated, bob, bob, 1),
		entry(3, model.KindBidPlaced, alice, alice, 1),
	} {
		if err := s.AppendEntry(ctx, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err := s.ListEntries(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	for i, e := range all {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}

	tail, _ := s.ListEntries(ctx, 2)
	if len(tail) != 1 || tail[0].Seq != 3 {
		t.Errorf("expected only seq 3 after 2, got %+v", tail)
	}
}

func TestMemoryStore_SeqConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.AppendEntry(ctx, entry(2, model.KindDeposit, alice, alice, 0)); !errors.Is(err, ErrSeqConflict) {
		t.Errorf("gap: expected ErrSeqConflict, got %v", err)
	}
	if err := s.AppendEntry(ctx, entry(1, model.KindDeposit, alice, alice, 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendEntry(ctx, entry(1, model.KindDeposit, alice, alice, 0)); !errors.Is(err, ErrSeqConflict) {
		t.Errorf("duplicate: expected ErrSeqConflict, got %v", err)
	}
}

func TestMemoryStore_Filters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rollover := entry(3, model.KindPotRolledOver, bob, bob, 1)
	rollover.TargetDrawID = 2
	for _, e := range []*model.LedgerEntry{
		entry(1, model.KindBidPlaced, alice, alice, 1),
		entry(2, model.KindClaimPaid, bob, alice, 1),
		rollover,
	} {
		if err := s.AppendEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	byDraw, _ := s.GetEntriesByDraw(ctx, 2)
	if len(byDraw) != 1 || byDraw[0].Kind != model.KindPotRolledOver {
		t.Errorf("rollover target should be indexed by draw 2, got %+v", byDraw)
	}
	byDraw, _ = s.GetEntriesByDraw(ctx, 1)
	if len(byDraw) != 3 {
		t.Errorf("expected 3 entries for draw 1, got %d", len(byDraw))
	}

	byAlice, _ := s.GetEntriesByAccount(ctx, alice)
	if len(byAlice) != 2 {
		t.Errorf("expected 2 entries for alice (actor or account), got %d", len(byAlice))
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	e := entry(1, model.KindDrawCreated, alice, alice, 1)
	e.Thresholds = []int64{20000, 21000}
	if err := s.AppendEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Thresholds[0] = -1

	got, _ := s.ListEntries(ctx, 0)
	got[0].Thresholds[1] = -1

	again, _ := s.ListEntries(ctx, 0)
	if again[0].Thresholds[0] != 20000 || again[0].Thresholds[1] != 21000 {
		t.Errorf("stored entry was mutated: %v", again[0].Thresholds)
	}
}
