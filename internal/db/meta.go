package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetMeta returns the value stored under key, or "" when the key is unset.
func (db *DB) GetMeta(key string) (string, error) {
	return db.GetMetaContext(context.Background(), key)
}

// GetMetaContext returns a meta value with context support.
func (db *DB) GetMetaContext(ctx context.Context, key string) (string, error) {
	return getMeta(ctx, db.conn, key)
}

// SetMeta stores value under key, replacing any previous value.
func (db *DB) SetMeta(key, value string) error {
	return db.SetMetaContext(context.Background(), key, value)
}

// SetMetaContext stores a meta value with context support.
func (db *DB) SetMetaContext(ctx context.Context, key, value string) error {
	return setMeta(ctx, db.conn, key, value)
}

// DeleteMeta removes key. Removing an unset key is not an error.
func (db *DB) DeleteMeta(ctx context.Context, key string) error {
	return deleteMeta(ctx, db.conn, key)
}

// GetMeta reads a meta value inside the transaction.
func (tx *Tx) GetMeta(ctx context.Context, key string) (string, error) {
	return getMeta(ctx, tx.tx, key)
}

// SetMeta writes a meta value inside the transaction.
func (tx *Tx) SetMeta(ctx context.Context, key, value string) error {
	return setMeta(ctx, tx.tx, key, value)
}

// DeleteMeta removes a meta value inside the transaction.
func (tx *Tx) DeleteMeta(ctx context.Context, key string) error {
	return deleteMeta(ctx, tx.tx, key)
}

func getMeta(ctx context.Context, q queryer, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %q: %w", key, err)
	}
	return value, nil
}

func setMeta(ctx context.Context, q queryer, key, value string) error {
	_, err := q.ExecContext(ctx, `
	INSERT INTO meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %q: %w", key, err)
	}
	return nil
}

func deleteMeta(ctx context.Context, q queryer, key string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete meta %q: %w", key, err)
	}
	return nil
}
