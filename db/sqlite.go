package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"charchat/utils"
)

// DB wraps the SQLite database connection
type DB struct {
	conn   *sql.DB
	logger *utils.Logger
}

// New creates a new database connection and runs schema migrations.
func New(dbPath string, logger *utils.Logger) (*DB, error) {
	if logger == nil {
		logger = utils.NopLogger()
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn, logger: logger}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs database migrations
func (db *DB) migrate() error {
	migrations := []string{
		// Conversations table
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			user_name TEXT DEFAULT '',
			temperature REAL DEFAULT 0.7,
			background_image TEXT DEFAULT '',
			character_image TEXT DEFAULT '',
			character_name TEXT DEFAULT '',
			character_color TEXT DEFAULT '',
			character_voice TEXT DEFAULT '',
			conversation_base TEXT DEFAULT '',
			initial_messages TEXT DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Messages table, keyed by (id, conversation_id) so message operations
		// never rewrite the owning conversation
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			segments TEXT NOT NULL DEFAULT '[]',
			seq INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id, conversation_id),
			FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,

		// Character templates
		`CREATE TABLE IF NOT EXISTS characters (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT DEFAULT '',
			role_instruction TEXT DEFAULT '',
			reminder_message TEXT DEFAULT '',
			initial_messages TEXT DEFAULT '[]',
			avatar TEXT DEFAULT '',
			background TEXT DEFAULT '',
			default_model TEXT DEFAULT '',
			color TEXT DEFAULT '',
			voice TEXT DEFAULT '',
			is_original INTEGER DEFAULT 0
		)`,

		// Provider credentials; at most one active row per provider
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			key TEXT NOT NULL,
			is_active INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used DATETIME
		)`,

		// Settings table (legacy blob, migration flag, backup snapshot)
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// FTS5 table for message search
		`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			segments,
			message_id UNINDEXED,
			conversation_id UNINDEXED
		)`,

		// Triggers to keep FTS in sync
		`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(segments, message_id, conversation_id)
			VALUES (new.segments, new.id, new.conversation_id);
		END`,

		`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
			DELETE FROM messages_fts WHERE message_id = old.id AND conversation_id = old.conversation_id;
		END`,

		`CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
			UPDATE messages_fts SET segments = new.segments
			WHERE message_id = new.id AND conversation_id = new.conversation_id;
		END`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_provider ON credentials(provider, is_active)`,
	}

	for _, migration := range migrations {
		if _, err := db.conn.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}
