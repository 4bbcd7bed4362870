package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Storage provides access to the relational board datastore.
type Storage struct {
	db *sql.DB
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (and creates if necessary) the SQLite database at path and
// applies the schema. Use ":memory:" for tests.
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Storage) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// withTx runs fn inside a transaction, rolling back on error.
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

const schema = `
CREATE TABLE IF NOT EXISTS boards (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS columns (
	id        TEXT PRIMARY KEY,
	board_id  TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	wip_limit INTEGER
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	board_id     TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	column_id    TEXT NOT NULL REFERENCES columns(id),
	swimlane_id  TEXT,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL,
	priority     TEXT NOT NULL,
	position     INTEGER NOT NULL,
	assignee_id  TEXT,
	due_date     TIMESTAMP,
	completed_at TIMESTAMP,
	parent_id    TEXT REFERENCES tasks(id),
	created_by   TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_partition ON tasks(column_id, swimlane_id, position);
CREATE INDEX IF NOT EXISTS idx_tasks_board ON tasks(board_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);

CREATE TABLE IF NOT EXISTS task_labels (
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	label   TEXT NOT NULL,
	PRIMARY KEY (task_id, label)
);

CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	author_id  TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS automation_rules (
	id               TEXT PRIMARY KEY,
	board_id         TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	name             TEXT NOT NULL,
	trigger_type     TEXT NOT NULL,
	trigger_config   TEXT NOT NULL DEFAULT '{}',
	action_type      TEXT NOT NULL,
	action_config    TEXT NOT NULL DEFAULT '{}',
	active           INTEGER NOT NULL DEFAULT 1,
	execution_count  INTEGER NOT NULL DEFAULT 0,
	last_executed_at TIMESTAMP,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rules_board_trigger ON automation_rules(board_id, trigger_type, active);

CREATE TABLE IF NOT EXISTS automation_executions (
	id         TEXT PRIMARY KEY,
	rule_id    TEXT NOT NULL REFERENCES automation_rules(id) ON DELETE CASCADE,
	task_id    TEXT REFERENCES tasks(id) ON DELETE SET NULL,
	status     TEXT NOT NULL,
	error      TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_rule ON automation_executions(rule_id, created_at);
`
