package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveCredential stores a new active credential for a provider. All existing
// rows for that provider are deactivated first, in the same transaction, so
// there is never more than one active row per provider.
func (db *DB) SaveCredential(provider, key string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE credentials SET is_active = 0 WHERE provider = ?", provider); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to deactivate credentials: %w", err))
	}

	_, err = tx.Exec(
		`INSERT INTO credentials (id, provider, key, is_active, created_at)
		 VALUES (?, ?, ?, 1, ?)`,
		uuid.NewString(), provider, key, time.Now(),
	)
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to save credential: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to commit credential: %w", err))
	}
	return nil
}

// GetActiveCredential returns the active secret for a provider, or "" when
// none exists or the read fails. The row's last_used timestamp is bumped as a
// side effect.
func (db *DB) GetActiveCredential(provider string) string {
	var id, key string
	err := db.conn.QueryRow(
		"SELECT id, key FROM credentials WHERE provider = ? AND is_active = 1",
		provider,
	).Scan(&id, &key)
	if err == sql.ErrNoRows {
		return ""
	}
	if err != nil {
		db.logger.Error("failed to read credential for %s: %v", provider, err)
		return ""
	}

	if _, err := db.conn.Exec("UPDATE credentials SET last_used = ? WHERE id = ?", time.Now(), id); err != nil {
		db.logger.Warn("failed to update credential last_used: %v", err)
	}

	return key
}

// HasCredential reports whether an active credential exists for a provider
// without exposing the secret.
func (db *DB) HasCredential(provider string) bool {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM credentials WHERE provider = ? AND is_active = 1",
		provider,
	).Scan(&count)
	if err != nil {
		db.logger.Error("failed to check credential for %s: %v", provider, err)
		return false
	}
	return count > 0
}

// DeleteCredentials removes every credential row for a provider.
func (db *DB) DeleteCredentials(provider string) error {
	if _, err := db.conn.Exec("DELETE FROM credentials WHERE provider = ?", provider); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to delete credentials: %w", err))
	}
	return nil
}

// ListCredentials returns all rows for a provider, newest first.
func (db *DB) ListCredentials(provider string) ([]Credential, error) {
	rows, err := db.conn.Query(
		`SELECT id, provider, key, is_active, created_at, COALESCE(last_used, created_at)
		 FROM credentials WHERE provider = ? ORDER BY created_at DESC`,
		provider,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	credentials := []Credential{}
	for rows.Next() {
		var c Credential
		var isActive int
		if err := rows.Scan(&c.ID, &c.Provider, &c.Key, &isActive, &c.CreatedAt, &c.LastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		c.IsActive = isActive != 0
		credentials = append(credentials, c)
	}
	return credentials, rows.Err()
}
