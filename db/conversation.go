package db

import (
	"database/sql"
	"fmt"
	"time"
)

// GetAllConversations materializes every conversation with its full ordered
// message list. Read failures are logged and degrade to an empty slice so
// startup never dies on a bad read.
func (db *DB) GetAllConversations() []Conversation {
	conversations, err := db.ConversationsByRecency()
	if err != nil {
		db.logger.Error("failed to load conversations: %v", err)
		return []Conversation{}
	}
	return conversations
}

// ConversationsByRecency returns all conversations, most recently updated
// first, with messages joined back in.
func (db *DB) ConversationsByRecency() ([]Conversation, error) {
	rows, err := db.conn.Query(
		`SELECT id, title, user_name, temperature, background_image, character_image,
		        character_name, character_color, character_voice, conversation_base,
		        initial_messages, created_at, updated_at
		 FROM conversations ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	for i := range conversations {
		messages, err := db.listMessages(conversations[i].ID)
		if err != nil {
			return nil, err
		}
		conversations[i].Messages = messages
	}

	return conversations, nil
}

// GetConversation retrieves one conversation by ID, messages included.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	row := db.conn.QueryRow(
		`SELECT id, title, user_name, temperature, background_image, character_image,
		        character_name, character_color, character_voice, conversation_base,
		        initial_messages, created_at, updated_at
		 FROM conversations WHERE id = ?`, id,
	)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation not found")
	}
	if err != nil {
		return nil, err
	}

	messages, err := db.listMessages(conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	return conv, nil
}

// SaveConversation writes the conversation metadata and its full message list
// in one transaction, so a crash can never leave a conversation without its
// messages.
func (db *DB) SaveConversation(c *Conversation) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := upsertConversation(tx, c); err != nil {
		return db.logWriteErr(err)
	}
	if err := replaceMessages(tx, c); err != nil {
		return db.logWriteErr(err)
	}

	if err := tx.Commit(); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to commit conversation: %w", err))
	}
	return nil
}

// SaveConversations replaces the entire conversation store with the given
// list. Destructive; used only for the bulk initial-load/migration path.
func (db *DB) SaveConversations(conversations []Conversation) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages"); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to clear messages: %w", err))
	}
	if _, err := tx.Exec("DELETE FROM conversations"); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to clear conversations: %w", err))
	}

	for i := range conversations {
		c := &conversations[i]
		if err := upsertConversation(tx, c); err != nil {
			return db.logWriteErr(err)
		}
		if err := replaceMessages(tx, c); err != nil {
			return db.logWriteErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to commit conversations: %w", err))
	}
	return nil
}

// DeleteConversation removes the conversation and all its owned messages
// atomically.
func (db *DB) DeleteConversation(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to delete messages: %w", err))
	}
	if _, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to delete conversation: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to commit delete: %w", err))
	}
	return nil
}

// CountConversations returns the total number of conversations.
func (db *DB) CountConversations() (int64, error) {
	var count int64
	err := db.conn.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

func (db *DB) logWriteErr(err error) error {
	db.logger.Error("store write failed: %v", err)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var initialRaw string
	err := row.Scan(
		&conv.ID, &conv.Title, &conv.UserName, &conv.Temperature,
		&conv.BackgroundImage, &conv.CharacterImage, &conv.CharacterName,
		&conv.CharacterColor, &conv.CharacterVoice, &conv.ConversationBase,
		&initialRaw, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	conv.InitialMessages, err = decodeSegments(initialRaw)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func upsertConversation(tx *sql.Tx, c *Conversation) error {
	initialRaw, err := encodeSegments(c.InitialMessages)
	if err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = time.Now()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO conversations
		 (id, title, user_name, temperature, background_image, character_image,
		  character_name, character_color, character_voice, conversation_base,
		  initial_messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.UserName, c.Temperature, c.BackgroundImage,
		c.CharacterImage, c.CharacterName, c.CharacterColor, c.CharacterVoice,
		c.ConversationBase, initialRaw, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func replaceMessages(tx *sql.Tx, c *Conversation) error {
	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", c.ID); err != nil {
		return fmt.Errorf("failed to clear conversation messages: %w", err)
	}
	for i := range c.Messages {
		m := &c.Messages[i]
		m.ConversationID = c.ID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		segmentsRaw, err := encodeSegments(m.Segments)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO messages (id, conversation_id, sender, segments, seq, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.ConversationID, m.Sender, segmentsRaw, i, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}
	return nil
}
