package db

import (
	"encoding/json"
	"fmt"
)

// MigrateFromLegacyStore imports conversations from the legacy flat-list blob
// stored under legacyKey in the settings table. It runs at most once per
// installation: if the migration flag is set or any conversation already
// exists, the current store contents are returned untouched. A malformed
// legacy blob falls back to the provided default list instead of failing.
func (db *DB) MigrateFromLegacyStore(legacyKey string, fallback []Conversation) ([]Conversation, error) {
	done, err := db.GetSetting(settingMigrationDone)
	if err != nil {
		return nil, err
	}
	if done == "true" {
		return db.ConversationsByRecency()
	}

	count, err := db.CountConversations()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		if err := db.SetSetting(settingMigrationDone, "true"); err != nil {
			return nil, err
		}
		return db.ConversationsByRecency()
	}

	imported := fallback
	raw, err := db.GetSetting(legacyKey)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		var parsed []Conversation
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			db.logger.Warn("legacy store blob is unreadable, using fallback: %v", err)
		} else {
			imported = parsed
		}
	}
	if imported == nil {
		imported = []Conversation{}
	}

	if err := db.SaveConversations(imported); err != nil {
		return nil, fmt.Errorf("failed to persist migrated conversations: %w", err)
	}
	if err := db.SetSetting(settingMigrationDone, "true"); err != nil {
		return nil, err
	}

	db.logger.Info("migrated %d conversations from legacy store", len(imported))
	return imported, nil
}
