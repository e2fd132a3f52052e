package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned when a kv slot has no stored value.
var ErrKeyNotFound = errors.New("database: key not found")

// KV provides access to the kv_store table: versioned single-value
// slots for small pieces of application state that do not warrant a
// table of their own.
type KV struct {
	db *DB
}

// NewKV creates a kv accessor over the given database.
func NewKV(db *DB) *KV {
	return &KV{db: db}
}

// Get reads the value stored in a slot. Returns ErrKeyNotFound when
// the slot is empty.
func (kv *KV) Get(ctx context.Context, slot string, version int) (string, error) {
	var value string
	err := kv.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE slot = ? AND version = ?`,
		slot, version,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading kv slot %s: %w", slot, err)
	}
	return value, nil
}

// Put stores a value in a slot, replacing any previous value.
func (kv *KV) Put(ctx context.Context, slot string, version int, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := kv.db.ExecContext(ctx,
		`INSERT INTO kv_store (slot, version, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(slot, version) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		slot, version, value, now,
	)
	if err != nil {
		return fmt.Errorf("writing kv slot %s: %w", slot, err)
	}
	return nil
}

// Delete removes a slot. Deleting an empty slot is not an error.
func (kv *KV) Delete(ctx context.Context, slot string, version int) error {
	_, err := kv.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE slot = ? AND version = ?`,
		slot, version,
	)
	if err != nil {
		return fmt.Errorf("deleting kv slot %s: %w", slot, err)
	}
	return nil
}
