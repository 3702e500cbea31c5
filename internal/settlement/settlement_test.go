package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/oracle"
	"github.com/atmx/settlement-engine/internal/registry"
)

var end = time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC)

func london(t *testing.T) contract.CityID {
	t.Helper()
	id, err := contract.NewCityID("London")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

type failingOracle struct{}

func (failingOracle) Temperature(context.Context, contract.CityID, time.Time) (int64, bool, error) {
	return 0, false, errors.New("connection refused")
}

func TestIsWinning_Strict(t *testing.T) {
	if IsWinning(21000, 21000) {
		t.Error("equal temperature must not win")
	}
	if !IsWinning(21001, 21000) {
		t.Error("higher temperature must win")
	}
	if IsWinning(-500, 0) {
		t.Error("lower temperature must not win")
	}
}

func TestWinningThresholds(t *testing.T) {
	d := &model.Draw{Thresholds: []int64{20000, 21000, 22000}, Settled: true, ActualTemp: 21500}
	got := WinningThresholds(d)
	if len(got) != 2 || got[0] != 20000 || got[1] != 21000 {
		t.Errorf("expected [20000 21000], got %v", got)
	}

	d.Settled = false
	if WinningThresholds(d) != nil {
		t.Error("open draw has no winning thresholds")
	}
}

func TestResolve_NotEnded(t *testing.T) {
	s := New(oracle.NewStatic())
	d := &model.Draw{ID: 1, CityID: london(t), EndTime: end}
	if _, err := s.Resolve(context.Background(), d, end.Add(-time.Second)); !errors.Is(err, ErrDrawNotEnded) {
		t.Errorf("expected ErrDrawNotEnded, got %v", err)
	}
}

func TestResolve_AlreadySettled(t *testing.T) {
	s := New(oracle.NewStatic())
	d := &model.Draw{ID: 1, CityID: london(t), EndTime: end, Settled: true}
	if _, err := s.Resolve(context.Background(), d, end.Add(time.Hour)); !errors.Is(err, registry.ErrDrawAlreadySettled) {
		t.Errorf("expected ErrDrawAlreadySettled, got %v", err)
	}
}

func TestResolve_OracleUnavailable(t *testing.T) {
	d := &model.Draw{ID: 1, CityID: london(t), EndTime: end}

	if _, err := New(oracle.NewStatic()).Resolve(context.Background(), d, end); !errors.Is(err, ErrOracleDataUnavailable) {
		t.Errorf("missing reading: expected ErrOracleDataUnavailable, got %v", err)
	}
	if _, err := New(failingOracle{}).Resolve(context.Background(), d, end); !errors.Is(err, ErrOracleDataUnavailable) {
		t.Errorf("oracle error: expected ErrOracleDataUnavailable, got %v", err)
	}
}

func TestResolve_AtEndTime(t *testing.T) {
	o := oracle.NewStatic()
	o.Set(london(t), end, 21500)
	d := &model.Draw{ID: 1, CityID: london(t), EndTime: end}

	temp, err := New(o).Resolve(context.Background(), d, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if temp != 21500 {
		t.Errorf("expected 21500, got %d", temp)
	}
}

func TestApply_Irreversible(t *testing.T) {
	r := registry.New(common.HexToAddress("0x01"))
	d := r.ApplyCreate(london(t), end, []int64{20000}, end.Add(-time.Hour))

	if err := Apply(r, d.ID, 21500, end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Apply(r, d.ID, 10000, end.Add(time.Minute)); !errors.Is(err, registry.ErrDrawAlreadySettled) {
		t.Errorf("expected ErrDrawAlreadySettled, got %v", err)
	}
	got, _ := r.GetDraw(d.ID)
	if !got.Settled || got.ActualTemp != 21500 {
		t.Errorf("unexpected draw state %+v", got)
	}
}
