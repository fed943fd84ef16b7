package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/relay/internal/models"
)

type SafetyRepo struct {
	pool *pgxpool.Pool
}

func NewSafetyRepo(pool *pgxpool.Pool) *SafetyRepo {
	return &SafetyRepo{pool: pool}
}

func (r *SafetyRepo) GetSafetyPolicy(ctx context.Context) ([]models.SafetySetting, error) {
	var raw []byte
	if err := r.pool.QueryRow(ctx, `SELECT settings FROM safety_policy WHERE id = 1`).Scan(&raw); err != nil {
		return nil, notFound(err)
	}
	var out []models.SafetySetting
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SafetyRepo) InitSafetyPolicy(ctx context.Context, settings []models.SafetySetting) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO safety_policy (id, settings) VALUES (1, $1)
		ON CONFLICT (id) DO NOTHING
	`, raw)
	return err
}

func (r *SafetyRepo) PutSafetyPolicy(ctx context.Context, settings []models.SafetySetting) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO safety_policy (id, settings, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = now()
	`, raw)
	return err
}
