package repository

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// columnMigration adds a column older databases may lack. The column is
// created with its default so existing rows read as that default.
type columnMigration struct {
	Table  string
	Column string
	Def    string
}

var columnMigrations = []columnMigration{
	{"accounts", "username", "TEXT NOT NULL DEFAULT ''"},
	{"accounts", "last_name", "TEXT NOT NULL DEFAULT ''"},
	{"subscriptions", "expires_at", "TIMESTAMPTZ"},
	{"preferences", "custom_instruction", "TEXT NOT NULL DEFAULT ''"},
	{"quota_state", "media_window", "TEXT NOT NULL DEFAULT ''"},
	{"quota_state", "media_count", "INTEGER NOT NULL DEFAULT 0"},
	{"messages", "media_id", "UUID REFERENCES media_refs(id) ON DELETE SET NULL"},
	{"media_refs", "path", "TEXT NOT NULL DEFAULT ''"},
}

// Migrate creates the schema, adds missing columns and folds the legacy
// message_history table into messages. It is safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, m := range columnMigrations {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", m.Table, m.Column, m.Def)
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", m.Table, m.Column, err)
		}
	}
	n, err := migrateLegacyHistory(ctx, pool)
	if err != nil {
		return fmt.Errorf("migrate legacy history: %w", err)
	}
	if n > 0 {
		log.Info("legacy message history migrated", "messages", n)
	}
	return nil
}

// migrateLegacyHistory copies (user_message, bot_response) pairs from the
// old message_history table into messages, then renames the old table so
// the copy runs once.
func migrateLegacyHistory(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass('message_history') IS NOT NULL`).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (id)
		SELECT DISTINCT user_id::text FROM message_history
		ON CONFLICT (id) DO NOTHING
	`); err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO messages (id, account_id, role, content, created_at)
		SELECT gen_random_uuid(), account_id, role, content, created_at
		FROM (
			SELECT id AS legacy_id, 0 AS ord, user_id::text AS account_id, 'user' AS role,
			       user_message AS content, COALESCE(created_at, now()) AS created_at
			FROM message_history
			UNION ALL
			SELECT id, 1, user_id::text, 'assistant', bot_response, COALESCE(created_at, now())
			FROM message_history
		) pairs
		ORDER BY legacy_id, ord
	`)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE message_history RENAME TO message_history_migrated`); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
