package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/engine"
	"github.com/atmx/settlement-engine/internal/oracle"
	"github.com/atmx/settlement-engine/internal/store"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	custody  = common.HexToAddress("0x00000000000000000000000000000000000000c5")

	start = time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)
	end   = time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)
)

func TestRunOnce_SettlesDueDraws(t *testing.T) {
	ctx := context.Background()
	now := start
	static := oracle.NewStatic()
	eng, err := engine.New(engine.Config{
		Operator: operator,
		Custody:  custody,
		Oracle:   static,
		Store:    store.NewMemoryStore(),
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	london, _ := contract.NewCityID("London")
	paris, _ := contract.NewCityID("Paris")
	first, _ := eng.CreateDraw(ctx, operator, london, end, []int64{20000})
	second, _ := eng.CreateDraw(ctx, operator, paris, end, []int64{20000})
	later, _ := eng.CreateDraw(ctx, operator, london, end.Add(24*time.Hour), []int64{20000})

	k := New(eng, operator, time.Minute, time.Second)

	if n := k.RunOnce(ctx); n != 0 {
		t.Fatalf("expected nothing due before the window ends, settled %d", n)
	}

	now = end
	static.Set(london, end, 21000)
	// Paris has no reading yet.
	if n := k.RunOnce(ctx); n != 1 {
		t.Fatalf("expected 1 settled, got %d", n)
	}
	if d, _ := eng.GetDraw(first); !d.Settled || d.ActualTemp != 21000 {
		t.Errorf("expected draw %d settled at 21000, got %+v", first, d)
	}
	if d, _ := eng.GetDraw(second); d.Settled {
		t.Errorf("draw %d should wait for a reading", second)
	}

	static.Set(paris, end, 19000)
	if n := k.RunOnce(ctx); n != 1 {
		t.Fatalf("expected the retried draw to settle, got %d", n)
	}
	if d, _ := eng.GetDraw(later); d.Settled {
		t.Errorf("draw %d is not due yet", later)
	}
	if due := eng.DueForSettlement(); len(due) != 0 {
		t.Errorf("expected no due draws, got %v", due)
	}
}

type stubSettler struct {
	due   []uint64
	errs  map[uint64]error
	calls []uint64
}

func (s *stubSettler) DueForSettlement() []uint64 { return s.due }

func (s *stubSettler) Settle(_ context.Context, _ common.Address, drawID uint64) (int64, error) {
	s.calls = append(s.calls, drawID)
	return 0, s.errs[drawID]
}

func TestRunOnce_ContinuesPastFailures(t *testing.T) {
	s := &stubSettler{
		due:  []uint64{1, 2, 3},
		errs: map[uint64]error{1: errors.New("journal down")},
	}
	k := New(s, operator, time.Minute, 0)

	if n := k.RunOnce(context.Background()); n != 2 {
		t.Errorf("expected 2 settled, got %d", n)
	}
	if len(s.calls) != 3 {
		t.Errorf("expected every due draw attempted, got %v", s.calls)
	}
}

func TestRunOnce_StopsOnCancelledContext(t *testing.T) {
	s := &stubSettler{due: []uint64{1, 2}}
	k := New(s, operator, time.Minute, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n := k.RunOnce(ctx); n != 0 || len(s.calls) != 0 {
		t.Errorf("expected no attempts after cancel, got %d settled, calls %v", n, s.calls)
	}
}

func TestStart_DisabledInterval(t *testing.T) {
	k := New(&stubSettler{}, operator, 0, 0)
	if err := k.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k.Stop()
}
