// Package sqlitestore is the single-file storage backend. It implements the
// same store interfaces as the Postgres repositories on top of
// modernc.org/sqlite.
//
// The database handle is limited to one connection, so every statement and
// transaction is serialised; read-modify-write steps are additionally written
// as single upserts or conditional updates like their Postgres versions.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/inaiurai/relay/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL DEFAULT '',
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
	account_id  TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
	tier        TEXT NOT NULL DEFAULT 'free',
	expires_at  INTEGER,
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS preferences (
	account_id          TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
	model               TEXT NOT NULL DEFAULT 'gemini-2.5-flash',
	persona             TEXT NOT NULL DEFAULT 'friend',
	custom_instruction  TEXT NOT NULL DEFAULT '',
	updated_at          INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS quota_state (
	account_id    TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
	rate_window   TEXT NOT NULL DEFAULT '',
	rate_count    INTEGER NOT NULL DEFAULT 0,
	media_window  TEXT NOT NULL DEFAULT '',
	media_count   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS media_refs (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	file_id     TEXT NOT NULL,
	path        TEXT NOT NULL DEFAULT '',
	mime_type   TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	role        TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	content     TEXT NOT NULL,
	media_id    TEXT REFERENCES media_refs(id) ON DELETE SET NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_account_seq_idx ON messages (account_id, seq);
CREATE TABLE IF NOT EXISTS safety_policy (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	settings    TEXT NOT NULL,
	updated_at  INTEGER NOT NULL
);
`

type columnMigration struct {
	Table  string
	Column string
	Def    string
}

// Columns added after the first release; missing ones are created with
// their default.
var columnMigrations = []columnMigration{
	{"accounts", "username", "TEXT NOT NULL DEFAULT ''"},
	{"accounts", "last_name", "TEXT NOT NULL DEFAULT ''"},
	{"preferences", "custom_instruction", "TEXT NOT NULL DEFAULT ''"},
	{"quota_state", "media_window", "TEXT NOT NULL DEFAULT ''"},
	{"quota_state", "media_count", "INTEGER NOT NULL DEFAULT 0"},
	{"media_refs", "path", "TEXT NOT NULL DEFAULT ''"},
}

type Store struct {
	db  *sql.DB
	now func() time.Time
	log *slog.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now, log: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, m := range columnMigrations {
		ok, err := s.columnExists(ctx, m.Table, m.Column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", m.Table, m.Column, err)
		}
		s.log.Info("column added", "table", m.Table, "column", m.Column)
	}
	n, err := s.migrateLegacyHistory(ctx)
	if err != nil {
		return fmt.Errorf("migrate legacy history: %w", err)
	}
	if n > 0 {
		s.log.Info("legacy message history migrated", "messages", n)
	}
	return nil
}

type legacyExchange struct {
	accountID string
	user      string
	assistant string
	createdAt int64
}

// migrateLegacyHistory copies (user_message, bot_response) pairs from the
// old message_history table into messages, then renames the old table so
// the copy runs once.
func (s *Store) migrateLegacyHistory(ctx context.Context) (int64, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'message_history'`,
	).Scan(&n); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT CAST(user_id AS TEXT), user_message, bot_response,
		       COALESCE(CAST(strftime('%s', created_at) AS INTEGER), 0) * 1000
		FROM message_history ORDER BY id
	`)
	if err != nil {
		return 0, err
	}
	var legacy []legacyExchange
	for rows.Next() {
		var e legacyExchange
		if err := rows.Scan(&e.accountID, &e.user, &e.assistant, &e.createdAt); err != nil {
			rows.Close()
			return 0, err
		}
		legacy = append(legacy, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := s.stamp()
	var copied int64
	for _, e := range legacy {
		if e.createdAt == 0 {
			e.createdAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO accounts (id, created_at) VALUES (?, ?)`, e.accountID, now,
		); err != nil {
			return 0, err
		}
		for _, m := range []struct {
			role    string
			content string
		}{{models.RoleUser, e.user}, {models.RoleAssistant, e.assistant}} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO messages (id, account_id, role, content, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, uuid.NewString(), e.accountID, m.role, m.content, e.createdAt); err != nil {
				return 0, err
			}
			copied++
		}
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE message_history RENAME TO message_history_migrated`); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return copied, nil
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid              int
			name, typ        string
			notNull, primary int
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primary); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *Store) stamp() int64 { return s.now().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

// removeFiles deletes stored media after an erasure commits. Missing files
// are ignored.
func (s *Store) removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("remove media file", "path", p, "error", err)
		}
	}
}
