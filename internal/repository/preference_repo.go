package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/relay/internal/models"
)

type PreferenceRepo struct {
	pool *pgxpool.Pool
}

func NewPreferenceRepo(pool *pgxpool.Pool) *PreferenceRepo {
	return &PreferenceRepo{pool: pool}
}

func (r *PreferenceRepo) GetPreferences(ctx context.Context, accountID string) (*models.Preferences, error) {
	var p models.Preferences
	err := r.pool.QueryRow(ctx, `
		SELECT account_id, model, persona, custom_instruction, updated_at
		FROM preferences WHERE account_id = $1
	`, accountID).Scan(&p.AccountID, &p.Model, &p.Persona, &p.CustomInstruction, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// UpdatePreferences applies the non-nil fields of u and returns the result.
func (r *PreferenceRepo) UpdatePreferences(ctx context.Context, accountID string, u models.PreferencesUpdate) (*models.Preferences, error) {
	var p models.Preferences
	err := r.pool.QueryRow(ctx, `
		UPDATE preferences SET
			model              = COALESCE($2, model),
			persona            = COALESCE($3, persona),
			custom_instruction = COALESCE($4, custom_instruction),
			updated_at         = now()
		WHERE account_id = $1
		RETURNING account_id, model, persona, custom_instruction, updated_at
	`, accountID, u.Model, u.Persona, u.CustomInstruction).Scan(&p.AccountID, &p.Model, &p.Persona, &p.CustomInstruction, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *PreferenceRepo) ResetPersona(ctx context.Context, accountID, from, to string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE preferences SET persona = $3, updated_at = now()
		WHERE account_id = $1 AND persona = $2
	`, accountID, from, to)
	return err
}

func (r *PreferenceRepo) ResetModel(ctx context.Context, accountID, from, to string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE preferences SET model = $3, updated_at = now()
		WHERE account_id = $1 AND model = $2
	`, accountID, from, to)
	return err
}
