package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/relay/internal/models"
)

// EraseHook runs inside the erasure transaction after the account's rows are
// deleted, with the storage paths of its media. Returning an error aborts the
// erasure.
type EraseHook func(ctx context.Context, tx pgx.Tx, accountID string, mediaPaths []string) error

type AccountRepo struct {
	pool      *pgxpool.Pool
	eraseHook EraseHook
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// SetEraseHook installs the hook EraseAccount calls before committing.
func (r *AccountRepo) SetEraseHook(h EraseHook) {
	r.eraseHook = h
}

// EnsureAccount creates the account with default subscription, preferences
// and quota rows if any of them is missing, and refreshes the non-empty
// profile fields.
func (r *AccountRepo) EnsureAccount(ctx context.Context, accountID string, p models.Profile) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			username   = COALESCE(NULLIF(EXCLUDED.username, ''), accounts.username),
			first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), accounts.first_name),
			last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), accounts.last_name)
	`, accountID, p.Username, p.FirstName, p.LastName); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (account_id, tier) VALUES ($1, $2)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID, models.TierFree); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO preferences (account_id, model, persona) VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID, models.DefaultModel, models.DefaultPersona); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO quota_state (account_id) VALUES ($1)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *AccountRepo) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, first_name, last_name, created_at
		FROM accounts WHERE id = $1
	`, accountID).Scan(&a.ID, &a.Username, &a.FirstName, &a.LastName, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// EraseAccount deletes the account and everything that references it in one
// transaction. Returns models.ErrNotFound for unknown accounts.
func (r *AccountRepo) EraseAccount(ctx context.Context, accountID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Lock the account row so a concurrent EnsureAccount cannot recreate
	// child rows mid-erasure.
	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&id); err != nil {
		return notFound(err)
	}

	rows, err := tx.Query(ctx, `SELECT path FROM media_refs WHERE account_id = $1 AND path <> ''`, accountID)
	if err != nil {
		return err
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}

	// Child tables cascade from accounts.
	if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID); err != nil {
		return err
	}
	if r.eraseHook != nil {
		if err := r.eraseHook(ctx, tx, accountID, paths); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}
