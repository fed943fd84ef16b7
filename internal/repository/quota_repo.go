package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/relay/internal/models"
)

// One upsert per counter. Both SET expressions read the pre-update row, so
// the reset-or-increment decision and the write happen under the same row
// lock.
var bumpQueries = map[models.QuotaKind]string{
	models.QuotaRate: `
		INSERT INTO quota_state (account_id, rate_window, rate_count) VALUES ($1, $2, 1)
		ON CONFLICT (account_id) DO UPDATE SET
			rate_count  = CASE WHEN quota_state.rate_window = EXCLUDED.rate_window
			                   THEN quota_state.rate_count + 1 ELSE 1 END,
			rate_window = EXCLUDED.rate_window
		RETURNING rate_count`,
	models.QuotaMedia: `
		INSERT INTO quota_state (account_id, media_window, media_count) VALUES ($1, $2, 1)
		ON CONFLICT (account_id) DO UPDATE SET
			media_count  = CASE WHEN quota_state.media_window = EXCLUDED.media_window
			                    THEN quota_state.media_count + 1 ELSE 1 END,
			media_window = EXCLUDED.media_window
		RETURNING media_count`,
}

type QuotaRepo struct {
	pool *pgxpool.Pool
}

func NewQuotaRepo(pool *pgxpool.Pool) *QuotaRepo {
	return &QuotaRepo{pool: pool}
}

func (r *QuotaRepo) BumpWindow(ctx context.Context, accountID string, kind models.QuotaKind, window string) (int, error) {
	q, ok := bumpQueries[kind]
	if !ok {
		return 0, fmt.Errorf("unknown quota kind %q", kind)
	}
	var count int
	if err := r.pool.QueryRow(ctx, q, accountID, window).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *QuotaRepo) GetQuotaState(ctx context.Context, accountID string) (*models.QuotaState, error) {
	var s models.QuotaState
	err := r.pool.QueryRow(ctx, `
		SELECT account_id, rate_window, rate_count, media_window, media_count
		FROM quota_state WHERE account_id = $1
	`, accountID).Scan(&s.AccountID, &s.RateWindow, &s.RateCount, &s.MediaWindow, &s.MediaCount)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}
