package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/inaiurai/relay/internal/models"
)

func (s *Store) EnsureAccount(ctx context.Context, accountID string, p models.Profile) error {
	now := s.stamp()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, username, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username   = COALESCE(NULLIF(excluded.username, ''), username),
			first_name = COALESCE(NULLIF(excluded.first_name, ''), first_name),
			last_name  = COALESCE(NULLIF(excluded.last_name, ''), last_name)
	`, accountID, p.Username, p.FirstName, p.LastName, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (account_id, tier, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID, string(models.TierFree), now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO preferences (account_id, model, persona, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID, models.DefaultModel, models.DefaultPersona, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO quota_state (account_id) VALUES (?)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var a models.Account
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, created_at FROM accounts WHERE id = ?
	`, accountID).Scan(&a.ID, &a.Username, &a.FirstName, &a.LastName, &created)
	if err != nil {
		return nil, notFound(err)
	}
	a.CreatedAt = fromMillis(created)
	return &a, nil
}

// EraseAccount deletes the account and all dependent rows, then removes its
// media files.
func (s *Store) EraseAccount(ctx context.Context, accountID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = ?`, accountID).Scan(&id); err != nil {
		return notFound(err)
	}
	rows, err := tx.QueryContext(ctx, `SELECT path FROM media_refs WHERE account_id = ? AND path <> ''`, accountID)
	if err != nil {
		return err
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return err
		}
		paths = append(paths, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, accountID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.removeFiles(paths)
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	var (
		sub     models.Subscription
		tier    string
		expires sql.NullInt64
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, tier, expires_at, updated_at FROM subscriptions WHERE account_id = ?
	`, accountID).Scan(&sub.AccountID, &tier, &expires, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	sub.Tier = models.DecodeTier(tier)
	if expires.Valid {
		t := fromMillis(expires.Int64)
		sub.ExpiresAt = &t
	}
	sub.UpdatedAt = fromMillis(updated)
	return &sub, nil
}

func (s *Store) SetSubscription(ctx context.Context, accountID string, tier models.Tier, expiresAt *time.Time) error {
	var exp sql.NullInt64
	if expiresAt != nil {
		exp = sql.NullInt64{Int64: expiresAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (account_id, tier, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			tier = excluded.tier, expires_at = excluded.expires_at, updated_at = excluded.updated_at
	`, accountID, string(tier), exp, s.stamp())
	return err
}

func (s *Store) DowngradeExpired(ctx context.Context, accountID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET tier = ?, expires_at = NULL, updated_at = ?
		WHERE account_id = ? AND tier <> ? AND expires_at IS NOT NULL AND expires_at <= ?
	`, string(models.TierFree), s.stamp(), accountID, string(models.TierFree), now.UnixMilli())
	return err
}

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET tier = ?, expires_at = NULL, updated_at = ?
		WHERE tier <> ? AND expires_at IS NOT NULL AND expires_at <= ?
	`, string(models.TierFree), s.stamp(), string(models.TierFree), now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) GetPreferences(ctx context.Context, accountID string) (*models.Preferences, error) {
	var p models.Preferences
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, model, persona, custom_instruction, updated_at
		FROM preferences WHERE account_id = ?
	`, accountID).Scan(&p.AccountID, &p.Model, &p.Persona, &p.CustomInstruction, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

func (s *Store) UpdatePreferences(ctx context.Context, accountID string, u models.PreferencesUpdate) (*models.Preferences, error) {
	var p models.Preferences
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE preferences SET
			model              = COALESCE(?, model),
			persona            = COALESCE(?, persona),
			custom_instruction = COALESCE(?, custom_instruction),
			updated_at         = ?
		WHERE account_id = ?
		RETURNING account_id, model, persona, custom_instruction, updated_at
	`, nullable(u.Model), nullable(u.Persona), nullable(u.CustomInstruction), s.stamp(), accountID).
		Scan(&p.AccountID, &p.Model, &p.Persona, &p.CustomInstruction, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

func (s *Store) ResetPersona(ctx context.Context, accountID, from, to string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE preferences SET persona = ?, updated_at = ? WHERE account_id = ? AND persona = ?
	`, to, s.stamp(), accountID, from)
	return err
}

func (s *Store) ResetModel(ctx context.Context, accountID, from, to string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE preferences SET model = ?, updated_at = ? WHERE account_id = ? AND model = ?
	`, to, s.stamp(), accountID, from)
	return err
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
