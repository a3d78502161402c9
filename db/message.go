package db

import (
	"database/sql"
	"fmt"
	"time"
)

// AddMessage appends one message to a conversation without rewriting the
// conversation itself.
func (db *DB) AddMessage(conversationID string, m Message) error {
	segmentsRaw, err := encodeSegments(m.Segments)
	if err != nil {
		return db.logWriteErr(err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRow(
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE conversation_id = ?",
		conversationID,
	).Scan(&seq)
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to compute message position: %w", err))
	}

	_, err = tx.Exec(
		`INSERT INTO messages (id, conversation_id, sender, segments, seq, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, conversationID, m.Sender, segmentsRaw, seq, m.CreatedAt,
	)
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to add message: %w", err))
	}

	if err := touchConversation(tx, conversationID); err != nil {
		return db.logWriteErr(err)
	}

	if err := tx.Commit(); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to commit message: %w", err))
	}
	return nil
}

// UpdateMessage replaces a message's text segments using the compound
// (message id, conversation id) key.
func (db *DB) UpdateMessage(conversationID, messageID string, segments []string) error {
	segmentsRaw, err := encodeSegments(segments)
	if err != nil {
		return db.logWriteErr(err)
	}
	res, err := db.conn.Exec(
		"UPDATE messages SET segments = ? WHERE id = ? AND conversation_id = ?",
		segmentsRaw, messageID, conversationID,
	)
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to update message: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.logWriteErr(fmt.Errorf("message %s not found in conversation %s", messageID, conversationID))
	}
	return nil
}

// DeleteMessage removes one message from a conversation.
func (db *DB) DeleteMessage(conversationID, messageID string) error {
	_, err := db.conn.Exec(
		"DELETE FROM messages WHERE id = ? AND conversation_id = ?",
		messageID, conversationID,
	)
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to delete message: %w", err))
	}
	return nil
}

// ClearMessages removes every message owned by a conversation but keeps the
// conversation itself.
func (db *DB) ClearMessages(conversationID string) error {
	_, err := db.conn.Exec("DELETE FROM messages WHERE conversation_id = ?", conversationID)
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to clear messages: %w", err))
	}
	return nil
}

func (db *DB) listMessages(conversationID string) ([]Message, error) {
	rows, err := db.conn.Query(
		`SELECT id, conversation_id, sender, segments, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var segmentsRaw string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &segmentsRaw, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Segments, err = decodeSegments(segmentsRaw)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// touchConversation bumps the owning conversation's updated_at so recency
// ordering follows message activity.
func touchConversation(tx *sql.Tx, conversationID string) error {
	_, err := tx.Exec(
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		time.Now(), conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}
