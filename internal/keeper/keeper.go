// Package keeper periodically settles draws whose window has closed.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-co-op/gocron"

	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/registry"
	"github.com/atmx/settlement-engine/internal/settlement"
)

// Settler is the part of the engine the keeper drives.
type Settler interface {
	DueForSettlement() []uint64
	Settle(ctx context.Context, caller common.Address, drawID uint64) (int64, error)
}

// Keeper settles due draws on a fixed interval. Draws without an oracle
// reading are retried on the next tick.
type Keeper struct {
	scheduler *gocron.Scheduler
	settler   Settler
	caller    common.Address
	interval  time.Duration
	timeout   time.Duration
}

// New creates a keeper that settles on behalf of caller every interval.
// Each settle attempt is bounded by timeout.
func New(settler Settler, caller common.Address, interval, timeout time.Duration) *Keeper {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Keeper{
		scheduler: s,
		settler:   settler,
		caller:    caller,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start schedules the settle job and starts the scheduler.
func (k *Keeper) Start() error {
	if k.interval <= 0 {
		slog.Info("keeper disabled")
		return nil
	}
	_, err := k.scheduler.Every(k.interval).Do(func() {
		k.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	k.scheduler.StartAsync()
	slog.Info("keeper started", "interval", k.interval.String())
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (k *Keeper) Stop() {
	if k.scheduler != nil {
		k.scheduler.Stop()
	}
}

// RunOnce attempts to settle every due draw and returns how many settled.
func (k *Keeper) RunOnce(ctx context.Context) int {
	settled := 0
	for _, id := range k.settler.DueForSettlement() {
		if ctx.Err() != nil {
			break
		}
		if k.settle(ctx, id) {
			settled++
		}
	}
	return settled
}

func (k *Keeper) settle(ctx context.Context, drawID uint64) bool {
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}

	temp, err := k.settler.Settle(ctx, k.caller, drawID)
	switch {
	case err == nil:
		metrics.KeeperRuns.WithLabelValues("settled").Inc()
		slog.Info("keeper settled draw", "draw_id", drawID, "actual_temp", temp)
		return true
	case errors.Is(err, settlement.ErrOracleDataUnavailable):
		metrics.KeeperRuns.WithLabelValues("pending").Inc()
		slog.Debug("keeper: no reading yet", "draw_id", drawID, "err", err)
	case errors.Is(err, registry.ErrDrawAlreadySettled):
		// Settled by someone else since the due list was taken.
		metrics.KeeperRuns.WithLabelValues("skipped").Inc()
	default:
		metrics.KeeperRuns.WithLabelValues("error").Inc()
		slog.Error("keeper settle failed", "draw_id", drawID, "err", err)
	}
	return false
}
