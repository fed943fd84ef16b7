package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/relay/internal/models"
)

type MediaRepo struct {
	pool *pgxpool.Pool
}

func NewMediaRepo(pool *pgxpool.Pool) *MediaRepo {
	return &MediaRepo{pool: pool}
}

func (r *MediaRepo) InsertMedia(ctx context.Context, m *models.MediaRef) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO media_refs (id, account_id, file_id, path, mime_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, m.AccountID, m.FileID, m.Path, m.MIMEType, m.Size).Scan(&m.CreatedAt)
}
