package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// PurgeMediaArgs lists stored media files to delete after an account was
// erased.
type PurgeMediaArgs struct {
	AccountID string   `json:"account_id"`
	Paths     []string `json:"paths"`
}

func (PurgeMediaArgs) Kind() string { return "purge_media" }

type PurgeMediaWorker struct {
	river.WorkerDefaults[PurgeMediaArgs]
	log *slog.Logger
}

func NewPurgeMediaWorker(log *slog.Logger) *PurgeMediaWorker {
	if log == nil {
		log = slog.Default()
	}
	return &PurgeMediaWorker{log: log}
}

// Work removes every listed file. Missing files count as removed, so a retry
// after a partial failure is safe.
func (w *PurgeMediaWorker) Work(ctx context.Context, job *river.Job[PurgeMediaArgs]) error {
	var failed []error
	removed := 0
	for _, p := range job.Args.Paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.Remove(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			failed = append(failed, err)
			continue
		}
		removed++
	}
	w.log.Info("media purged", "account_id", job.Args.AccountID, "removed", removed, "failed", len(failed))
	if len(failed) > 0 {
		return fmt.Errorf("purge media for %s: %w", job.Args.AccountID, errors.Join(failed...))
	}
	return nil
}

// InsertPurgeMediaTxFunc enqueues a PurgeMedia job within the given
// transaction. Provided by main using river.Client.InsertTx.
type InsertPurgeMediaTxFunc func(ctx context.Context, tx pgx.Tx, args PurgeMediaArgs) error

// LateInserter holds an InsertPurgeMediaTxFunc that is set after the River
// client exists. The client needs the workers, and the erase hook is wired
// before the client is built.
type LateInserter struct {
	mu sync.Mutex
	fn InsertPurgeMediaTxFunc
}

func (l *LateInserter) Set(fn InsertPurgeMediaTxFunc) {
	l.mu.Lock()
	l.fn = fn
	l.mu.Unlock()
}

func (l *LateInserter) Insert(ctx context.Context, tx pgx.Tx, args PurgeMediaArgs) error {
	l.mu.Lock()
	fn := l.fn
	l.mu.Unlock()
	if fn == nil {
		return errors.New("river insert not wired")
	}
	return fn(ctx, tx, args)
}

// EraseHook returns a hook for repository.AccountRepo that queues a media
// purge inside the erasure transaction, so the files go only if the rows do.
func EraseHook(insert InsertPurgeMediaTxFunc) func(ctx context.Context, tx pgx.Tx, accountID string, mediaPaths []string) error {
	return func(ctx context.Context, tx pgx.Tx, accountID string, mediaPaths []string) error {
		if len(mediaPaths) == 0 {
			return nil
		}
		if err := insert(ctx, tx, PurgeMediaArgs{AccountID: accountID, Paths: mediaPaths}); err != nil {
			return fmt.Errorf("queue media purge: %w", err)
		}
		return nil
	}
}
