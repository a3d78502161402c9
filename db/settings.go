package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Settings keys used internally.
const (
	settingMigrationDone = "legacy_migration_done"
	settingBackup        = "conversations_backup"
)

// GetSetting reads one settings value. Missing keys return "" without error.
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting writes one settings value.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, time.Now(),
	)
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to write setting %s: %w", key, err))
	}
	return nil
}

// WriteBackupSnapshot stores a flat JSON snapshot of all conversations in the
// settings table. Used as the safety net when a transactional write fails.
func (db *DB) WriteBackupSnapshot(conversations []Conversation) error {
	data, err := json.Marshal(conversations)
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to encode backup snapshot: %w", err))
	}
	return db.SetSetting(settingBackup, string(data))
}

// ReadBackupSnapshot returns the last flat snapshot, or nil when none exists
// or it cannot be parsed.
func (db *DB) ReadBackupSnapshot() []Conversation {
	raw, err := db.GetSetting(settingBackup)
	if err != nil || raw == "" {
		return nil
	}
	var conversations []Conversation
	if err := json.Unmarshal([]byte(raw), &conversations); err != nil {
		db.logger.Warn("backup snapshot is unreadable: %v", err)
		return nil
	}
	return conversations
}
