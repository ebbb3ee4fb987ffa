package store

import (
	"database/sql"
	"errors"
	"time"
)

// Checkpoint keys.
const (
	KeySelectedRoom  = "selected_room"
	KeyLastBootstrap = "last_bootstrap"
)

// SetCheckpoint stores a sync checkpoint value.
func (db *DB) SetCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint returns a sync checkpoint value, or "" if it was never set.
func (db *DB) GetCheckpoint(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
