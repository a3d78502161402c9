package db

import "fmt"

// Stats summarizes database contents.
type Stats struct {
	ConversationCount int64
	MessageCount      int64
	CharacterCount    int64
	DBSizeBytes       int64
}

// GetStats returns database statistics.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&stats.ConversationCount); err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM messages").Scan(&stats.MessageCount); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM characters").Scan(&stats.CharacterCount); err != nil {
		return nil, fmt.Errorf("failed to count characters: %w", err)
	}

	var pageCount, pageSize int64
	if err := db.conn.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to get page size: %w", err)
	}
	stats.DBSizeBytes = pageCount * pageSize

	return stats, nil
}

// Vacuum optimizes the database file.
func (db *DB) Vacuum() error {
	if _, err := db.conn.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
