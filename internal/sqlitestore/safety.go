package sqlitestore

import (
	"context"
	"encoding/json"

	"github.com/inaiurai/relay/internal/models"
)

func (s *Store) GetSafetyPolicy(ctx context.Context) ([]models.SafetySetting, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT settings FROM safety_policy WHERE id = 1`).Scan(&raw); err != nil {
		return nil, notFound(err)
	}
	var out []models.SafetySetting
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) InitSafetyPolicy(ctx context.Context, settings []models.SafetySetting) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO safety_policy (id, settings, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, string(raw), s.stamp())
	return err
}

func (s *Store) PutSafetyPolicy(ctx context.Context, settings []models.SafetySetting) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO safety_policy (id, settings, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at
	`, string(raw), s.stamp())
	return err
}
