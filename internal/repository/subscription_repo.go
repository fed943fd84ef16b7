package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/relay/internal/models"
)

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func (r *SubscriptionRepo) GetSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	var s models.Subscription
	var tier string
	err := r.pool.QueryRow(ctx, `
		SELECT account_id, tier, expires_at, updated_at
		FROM subscriptions WHERE account_id = $1
	`, accountID).Scan(&s.AccountID, &tier, &s.ExpiresAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	s.Tier = models.DecodeTier(tier)
	return &s, nil
}

func (r *SubscriptionRepo) SetSubscription(ctx context.Context, accountID string, tier models.Tier, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscriptions (account_id, tier, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id) DO UPDATE SET
			tier = EXCLUDED.tier, expires_at = EXCLUDED.expires_at, updated_at = now()
	`, accountID, tier, expiresAt)
	return err
}

// DowngradeExpired is a conditional update: concurrent callers race on the
// row lock and the losers match zero rows.
func (r *SubscriptionRepo) DowngradeExpired(ctx context.Context, accountID string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET tier = $3, expires_at = NULL, updated_at = now()
		WHERE account_id = $1 AND tier <> $3 AND expires_at IS NOT NULL AND expires_at <= $2
	`, accountID, now, models.TierFree)
	return err
}

// SweepExpired downgrades every expired subscription and returns how many
// rows changed.
func (r *SubscriptionRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET tier = $2, expires_at = NULL, updated_at = now()
		WHERE tier <> $2 AND expires_at IS NOT NULL AND expires_at <= $1
	`, now, models.TierFree)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
