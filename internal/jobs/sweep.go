// Package jobs holds the background work that runs on River: the periodic
// subscription expiry sweep and media purges queued by account erasure.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// DefaultSweepInterval is how often expired subscriptions are downgraded.
const DefaultSweepInterval = 15 * time.Minute

type ExpirySweepArgs struct{}

func (ExpirySweepArgs) Kind() string { return "subscription_expiry_sweep" }

// Sweeper downgrades every subscription whose expiry is at or before now.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type ExpirySweepWorker struct {
	river.WorkerDefaults[ExpirySweepArgs]
	sweeper Sweeper
	now     func() time.Time
	log     *slog.Logger
}

func NewExpirySweepWorker(s Sweeper, log *slog.Logger) *ExpirySweepWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ExpirySweepWorker{sweeper: s, now: time.Now, log: log}
}

func (w *ExpirySweepWorker) Work(ctx context.Context, _ *river.Job[ExpirySweepArgs]) error {
	return w.Sweep(ctx)
}

// Sweep runs one pass.
func (w *ExpirySweepWorker) Sweep(ctx context.Context) error {
	n, err := w.sweeper.SweepExpired(ctx, w.now().UTC())
	if err != nil {
		return fmt.Errorf("sweep expired subscriptions: %w", err)
	}
	if n > 0 {
		w.log.Info("expired subscriptions downgraded", "count", n)
	}
	return nil
}

// Timeout bounds a single sweep.
func (w *ExpirySweepWorker) Timeout(*river.Job[ExpirySweepArgs]) time.Duration {
	return time.Minute
}

// PeriodicJobs returns the River periodic jobs for the given sweep interval.
func PeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ExpirySweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// RunSweepLoop sweeps on a ticker until ctx is done. It serves deployments
// without a job queue (the SQLite store).
func RunSweepLoop(ctx context.Context, w *ExpirySweepWorker, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("expiry sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
