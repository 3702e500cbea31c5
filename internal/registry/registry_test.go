package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/contract"
)

var (
	operator = common.HexToAddress("0x0a")
	stranger = common.HexToAddress("0x0b")
	now      = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
)

func city(t *testing.T, name string) contract.CityID {
	t.Helper()
	id, err := contract.NewCityID(name)
	if err != nil {
		t.Fatalf("city id: %v", err)
	}
	return id
}

func TestCheckCreate_Valid(t *testing.T) {
	r := New(operator)
	err := r.CheckCreate(operator, city(t, "London"), now.Add(time.Hour), []int64{20000, 21000, 22000}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckCreate_Failures(t *testing.T) {
	r := New(operator)
	london := city(t, "London")

	tests := []struct {
		name       string
		caller     common.Address
		city       contract.CityID
		endTime    time.Time
		thresholds []int64
		want       error
	}{
		{"non-operator", stranger, london, now.Add(time.Hour), []int64{1}, ErrUnauthorized},
		{"end time now", operator, london, now, []int64{1}, ErrInvalidEndTime},
		{"end time past", operator, london, now.Add(-time.Second), []int64{1}, ErrInvalidEndTime},
		{"empty thresholds", operator, london, now.Add(time.Hour), nil, ErrInvalidThresholds},
		{"duplicate thresholds", operator, london, now.Add(time.Hour), []int64{1, 1}, ErrInvalidThresholds},
		{"decreasing thresholds", operator, london, now.Add(time.Hour), []int64{3, 2}, ErrInvalidThresholds},
		{"zero city", operator, contract.CityID{}, now.Add(time.Hour), []int64{1}, ErrInvalidCityID},
	}
	for _, tt := range tests {
		err := r.CheckCreate(tt.caller, tt.city, tt.endTime, tt.thresholds, now)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestApplyCreate_MonotonicIDs(t *testing.T) {
	r := New(operator)
	london := city(t, "London")

	first := r.ApplyCreate(london, now.Add(time.Hour), []int64{1}, now)
	second := r.ApplyCreate(london, now.Add(time.Hour), []int64{1}, now)
	if first.ID != 1 || second.ID != 2 {
		t.Errorf("expected ids 1,2 got %d,%d", first.ID, second.ID)
	}
	if r.NextID() != 3 {
		t.Errorf("expected next id 3, got %d", r.NextID())
	}
}

func TestApplyCreate_CopiesThresholds(t *testing.T) {
	r := New(operator)
	ts := []int64{1, 2, 3}
	d := r.ApplyCreate(city(t, "Oslo"), now.Add(time.Hour), ts, now)
	ts[0] = 99

	got, _ := r.GetThresholds(d.ID)
	if got[0] != 1 {
		t.Errorf("stored thresholds must not alias the caller's slice, got %v", got)
	}
	got[1] = 42
	again, _ := r.GetThresholds(d.ID)
	if again[1] != 2 {
		t.Errorf("returned thresholds must be a copy, got %v", again)
	}
}

func TestFund(t *testing.T) {
	r := New(operator)
	d := r.ApplyCreate(city(t, "Rome"), now.Add(time.Hour), []int64{1}, now)

	for i := 0; i < 3; i++ {
		if err := r.CheckFund(d.ID); err != nil {
			t.Fatalf("fund %d: %v", i, err)
		}
		r.ApplyFund(d.ID, decimal.NewFromInt(100))
	}
	got, _ := r.GetDraw(d.ID)
	if !got.Pot.Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected pot 300, got %s", got.Pot)
	}

	if err := r.CheckFund(999); !errors.Is(err, ErrDrawNotFound) {
		t.Errorf("expected ErrDrawNotFound, got %v", err)
	}

	if err := r.MarkSettled(d.ID, 1500, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := r.CheckFund(d.ID); !errors.Is(err, ErrDrawAlreadySettled) {
		t.Errorf("expected ErrDrawAlreadySettled, got %v", err)
	}
}

func TestMarkSettled_OneWay(t *testing.T) {
	r := New(operator)
	d := r.ApplyCreate(city(t, "Rome"), now.Add(time.Hour), []int64{1}, now)

	if err := r.MarkSettled(d.ID, 21500, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.MarkSettled(d.ID, 9999, now.Add(3*time.Hour)); !errors.Is(err, ErrDrawAlreadySettled) {
		t.Errorf("expected ErrDrawAlreadySettled, got %v", err)
	}
	got, _ := r.GetDraw(d.ID)
	if got.ActualTemp != 21500 {
		t.Errorf("actual temp changed by failed settle: %d", got.ActualTemp)
	}
	if got.SettledAt == nil || !got.SettledAt.Equal(now.Add(2*time.Hour)) {
		t.Errorf("unexpected settled_at %v", got.SettledAt)
	}
}

func TestGetDraw_NotFound(t *testing.T) {
	r := New(operator)
	if _, err := r.GetDraw(1); !errors.Is(err, ErrDrawNotFound) {
		t.Errorf("expected ErrDrawNotFound, got %v", err)
	}
	if _, err := r.GetThresholds(1); !errors.Is(err, ErrDrawNotFound) {
		t.Errorf("expected ErrDrawNotFound, got %v", err)
	}
}

func TestListDraws_Ordered(t *testing.T) {
	r := New(operator)
	for i := 0; i < 5; i++ {
		r.ApplyCreate(city(t, "Lima"), now.Add(time.Hour), []int64{1}, now)
	}
	draws := r.ListDraws()
	if len(draws) != 5 {
		t.Fatalf("expected 5 draws, got %d", len(draws))
	}
	for i, d := range draws {
		if d.ID != uint64(i+1) {
			t.Errorf("position %d has id %d", i, d.ID)
		}
	}
}

func TestApplyDrain(t *testing.T) {
	r := New(operator)
	d := r.ApplyCreate(city(t, "Rome"), now.Add(time.Hour), []int64{1}, now)
	r.ApplyFund(d.ID, decimal.NewFromInt(70))

	if got := r.ApplyDrain(d.ID); !got.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected drained 70, got %s", got)
	}
	after, _ := r.GetDraw(d.ID)
	if !after.Pot.IsZero() {
		t.Errorf("pot should be zero after drain, got %s", after.Pot)
	}
}
