package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/inaiurai/relay/internal/config"
	"github.com/inaiurai/relay/internal/conversation"
	"github.com/inaiurai/relay/internal/dashboard"
	"github.com/inaiurai/relay/internal/entitlement"
	"github.com/inaiurai/relay/internal/jobs"
	"github.com/inaiurai/relay/internal/quota"
	"github.com/inaiurai/relay/internal/relay"
	"github.com/inaiurai/relay/internal/repository"
	"github.com/inaiurai/relay/internal/safety"
	"github.com/inaiurai/relay/internal/sqlitestore"
)

// backend is everything the services need from storage. Both
// *repository.Store and *sqlitestore.Store satisfy it.
type backend interface {
	relay.Store
	conversation.Store
	entitlement.SubscriptionStore
	quota.CounterStore
	safety.Store
	dashboard.ReportSource
	jobs.Sweeper
}

type storage struct {
	backend
	pool   *pgxpool.Pool
	sqlite *sqlitestore.Store
	pg     *repository.Store
}

func (s *storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlite != nil {
		s.sqlite.Close()
	}
}

// openStorage connects to the configured backend. Postgres schema changes
// are applied only when migrate is set; SQLite always migrates on open.
func openStorage(ctx context.Context, cfg *config.Config, migrate bool, log *slog.Logger) (*storage, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		st, err := sqlitestore.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		log.Info("opened SQLite store", "path", cfg.SQLitePath)
		return &storage{backend: st, sqlite: st}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot reach PostgreSQL: %w", err)
	}
	log.Info("connected to PostgreSQL")

	if migrate {
		if err := migratePostgres(ctx, pool, log); err != nil {
			pool.Close()
			return nil, err
		}
	}
	pg := repository.NewStore(pool)
	return &storage{backend: pg, pool: pool, pg: pg}, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	if err := repository.Migrate(ctx, pool, log); err != nil {
		return err
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	log.Info("migrations applied")
	return nil
}

// startJobs runs background work until ctx is done. On Postgres it builds
// the River client and wires the erase hook to enqueue media purges; on
// SQLite it runs the expiry sweep on a ticker.
func startJobs(st *storage, cfg *config.Config, log *slog.Logger) (func(context.Context) error, error) {
	sweeper := jobs.NewExpirySweepWorker(st, log)
	if st.pool == nil {
		return func(ctx context.Context) error {
			jobs.RunSweepLoop(ctx, sweeper, cfg.SweepInterval)
			return nil
		}, nil
	}

	// The insert func is set after the River client is created.
	inserter := &jobs.LateInserter{}
	st.pg.SetEraseHook(jobs.EraseHook(inserter.Insert))

	workers := river.NewWorkers()
	river.AddWorker(workers, sweeper)
	river.AddWorker(workers, jobs.NewPurgeMediaWorker(log))

	riverClient, err := river.NewClient(riverpgxv5.New(st.pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers:      workers,
		PeriodicJobs: jobs.PeriodicJobs(cfg.SweepInterval),
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	inserter.Set(func(ctx context.Context, tx pgx.Tx, args jobs.PurgeMediaArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	})

	return func(ctx context.Context) error {
		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return riverClient.Stop(stopCtx)
	}, nil
}
