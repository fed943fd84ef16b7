package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/inaiurai/relay/internal/models"
)

func (s *Store) AppendExchange(ctx context.Context, user, assistant *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now()
	for _, m := range []*models.Message{user, assistant} {
		var media sql.NullString
		if m.MediaID != nil {
			media = sql.NullString{String: m.MediaID.String(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, account_id, role, content, media_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, m.ID.String(), m.AccountID, m.Role, m.Content, media, now.UnixMilli()); err != nil {
			return err
		}
		m.CreatedAt = now.UTC()
	}
	return tx.Commit()
}

func (s *Store) RecentMessages(ctx context.Context, accountID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, role, content, media_id, created_at FROM (
			SELECT seq, id, account_id, role, content, media_id, created_at
			FROM messages WHERE account_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Message
	for rows.Next() {
		var (
			m       models.Message
			id      string
			media   sql.NullString
			created int64
		)
		if err := rows.Scan(&id, &m.AccountID, &m.Role, &m.Content, &media, &created); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if media.Valid {
			mid, err := uuid.Parse(media.String)
			if err != nil {
				return nil, err
			}
			m.MediaID = &mid
		}
		m.CreatedAt = fromMillis(created)
		list = append(list, &m)
	}
	return list, rows.Err()
}

func (s *Store) ClearMessages(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) InsertMedia(ctx context.Context, m *models.MediaRef) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_refs (id, account_id, file_id, path, mime_type, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID.String(), m.AccountID, m.FileID, m.Path, m.MIMEType, m.Size, now.UnixMilli())
	if err != nil {
		return err
	}
	m.CreatedAt = now.UTC()
	return nil
}
