package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetSyncState returns the value stored under key, or "" when unset
func (db *DB) GetSyncState(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading sync state %s: %w", key, err)
	}
	return value, nil
}

// SetSyncState stores value under key
func (db *DB) SetSyncState(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing sync state %s: %w", key, err)
	}
	return nil
}

// GetSyncTime returns the time stored under key, zero when unset
func (db *DB) GetSyncTime(key string) (time.Time, error) {
	value, err := db.GetSyncState(key)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sync state %s: parsing %q: %w", key, value, err)
	}
	return t, nil
}

// SetSyncTime stores t under key in UTC
func (db *DB) SetSyncTime(key string, t time.Time) error {
	return db.SetSyncState(key, t.UTC().Format(time.RFC3339Nano))
}
