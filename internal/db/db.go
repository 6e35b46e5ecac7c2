// Package db provides the on-device todo store.
//
// The store is a single embedded SQLite file (WAL mode) holding one todos
// table plus a small meta table for persisted flags such as the seed marker.
//
// Architecture:
//   - Database file: ~/.local/share/emtodo/todos.db by default
//   - WAL mode: concurrent readers during writes (the dashboard reads while
//     the CLI or watcher writes)
//   - Schema: todos, meta
//   - Search: a lower-cased search_text column maintained on every write, so
//     matching is Unicode case-insensitive without SQLite extensions
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	// ErrNotFound is returned when a todo with the requested id does not exist.
	ErrNotFound = errors.New("todo not found")

	// ErrExists is returned when creating a todo whose id is already taken.
	ErrExists = errors.New("todo already exists")
)

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created if needed. Per-connection pragmas (busy
// timeout, WAL) are passed in the DSN so every pooled connection gets them.
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open("todos.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	path = strings.TrimPrefix(path, "file:")
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(wal)" +
		"&_pragma=synchronous(normal)" +
		"&_txlock=immediate"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path}, nil
}

// OpenAndInit opens the database and makes sure the schema exists.
func OpenAndInit(ctx context.Context, path string) (*DB, error) {
	store, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		slog.Warn("failed to checkpoint WAL", "path", db.path, "error", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// It is idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS todos (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,  -- unix milliseconds, UTC
		is_completed INTEGER NOT NULL DEFAULT 0,

		-- lower(name || description || dd/MM/yy), maintained by the store
		search_text TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_todos_created ON todos(created_at);
	CREATE INDEX IF NOT EXISTS idx_todos_completed ON todos(is_completed, created_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Reset deletes every todo and every meta flag, returning the store to the
// state of a fresh install.
func (db *DB) Reset() error {
	return db.ResetContext(context.Background())
}

// ResetContext deletes all rows with context support.
func (db *DB) ResetContext(ctx context.Context) error {
	return db.Update(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, "DELETE FROM todos"); err != nil {
			return fmt.Errorf("failed to clear todos: %w", err)
		}
		if _, err := tx.tx.ExecContext(ctx, "DELETE FROM meta"); err != nil {
			return fmt.Errorf("failed to clear meta: %w", err)
		}
		return nil
	})
}

// Tx is a write transaction handed to Update callbacks.
type Tx struct {
	tx *sql.Tx
}

// Update runs fn inside a write transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *DB) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// queryer is the subset of *sql.DB and *sql.Tx the helpers need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// affected maps a zero-row write to ErrNotFound.
func affected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}
