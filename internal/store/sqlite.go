// ABOUTME: SQLite store for lucycore using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema, and provides shared query helpers

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/snowcapsystems/lucycore/internal/vault"
)

// SQLiteStore implements all lucycore persistence: principals, trees,
// memories, shares, secrets, handoffs, and sessions.
type SQLiteStore struct {
	db     *sql.DB
	cipher *vault.Cipher
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. The cipher seals and opens
// secret values; it is loaded once at process start and never rotated.
func NewSQLiteStore(path string, cipher *vault.Cipher) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps the per-connection pragmas in effect and
	// serializes writers, so concurrent operations queue instead of
	// failing with a busy error.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		cipher: cipher,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			user_id    INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agents (
			agent_id   INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL REFERENCES users(user_id),
			name       TEXT NOT NULL UNIQUE,
			api_key    TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agents_user ON agents(user_id);

		CREATE TABLE IF NOT EXISTS nodes (
			node_id     INTEGER PRIMARY KEY AUTOINCREMENT,
			kind        TEXT NOT NULL,
			owner_id    INTEGER NOT NULL,
			parent_id   INTEGER NOT NULL DEFAULT 0,
			category_id INTEGER NOT NULL DEFAULT 0,
			title       TEXT NOT NULL,
			description TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			CHECK (kind IN ('always_load', 'preferences', 'hints', 'projects', 'wikis'))
		);

		CREATE INDEX IF NOT EXISTS idx_nodes_owner_parent ON nodes(kind, owner_id, parent_id);
		CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(kind, parent_id);
		CREATE INDEX IF NOT EXISTS idx_nodes_category ON nodes(kind, category_id);

		CREATE TABLE IF NOT EXISTS memories (
			memory_id   INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id    INTEGER NOT NULL REFERENCES agents(agent_id),
			title       TEXT NOT NULL,
			description TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id);

		CREATE TABLE IF NOT EXISTS memory_approvals (
			memory_id           INTEGER PRIMARY KEY REFERENCES memories(memory_id) ON DELETE CASCADE,
			approved_by_user_id INTEGER NOT NULL,
			approved_at         TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS shares (
			share_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			from_user_id     INTEGER NOT NULL REFERENCES users(user_id),
			to_user_id       INTEGER NOT NULL REFERENCES users(user_id),
			object_type      TEXT NOT NULL,
			object_id        INTEGER NOT NULL,
			permission_level INTEGER NOT NULL,
			created_at       TEXT NOT NULL,

			UNIQUE (to_user_id, object_type, object_id),
			CHECK (object_type IN ('project', 'hint', 'wiki')),
			CHECK (permission_level BETWEEN 1 AND 3),
			CHECK (from_user_id <> to_user_id)
		);

		CREATE INDEX IF NOT EXISTS idx_shares_from ON shares(from_user_id);
		CREATE INDEX IF NOT EXISTS idx_shares_object ON shares(object_type, object_id);

		CREATE TABLE IF NOT EXISTS secrets (
			secret_id       INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id         INTEGER NOT NULL REFERENCES users(user_id),
			key             TEXT NOT NULL,
			encrypted_value BLOB NOT NULL,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,

			UNIQUE (user_id, key)
		);

		CREATE TABLE IF NOT EXISTS handoffs (
			handoff_id   INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id     INTEGER NOT NULL REFERENCES agents(agent_id),
			title        TEXT NOT NULL,
			prompt       TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			picked_up_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_handoffs_pending ON handoffs(agent_id, picked_up_at);

		CREATE TABLE IF NOT EXISTS sessions (
			session_id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id   INTEGER NOT NULL REFERENCES agents(agent_id),
			project    TEXT,
			started_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_id, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx so scope resolution
// can run inside or outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// formatTime renders a timestamp for storage. RFC3339Nano keeps creation
// order stable for rows inserted within the same second.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
