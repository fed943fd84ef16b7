package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/relay/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// AppendExchange stores the user message and the reply together, or
// neither.
func (r *MessageRepo) AppendExchange(ctx context.Context, user, assistant *models.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, m := range []*models.Message{user, assistant} {
		if err := insertMessage(ctx, tx, m); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertMessage(ctx context.Context, tx pgx.Tx, m *models.Message) error {
	return tx.QueryRow(ctx, `
		INSERT INTO messages (id, account_id, role, content, media_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, m.ID, m.AccountID, m.Role, m.Content, m.MediaID).Scan(&m.CreatedAt)
}

// RecentMessages returns the newest limit messages in chronological order.
func (r *MessageRepo) RecentMessages(ctx context.Context, accountID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, role, content, media_id, created_at FROM (
			SELECT seq, id, account_id, role, content, media_id, created_at
			FROM messages WHERE account_id = $1
			ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq ASC
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Role, &m.Content, &m.MediaID, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// ClearMessages deletes the account's whole history and returns the count.
func (r *MessageRepo) ClearMessages(ctx context.Context, accountID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
