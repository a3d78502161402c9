package db

import (
	"database/sql"
	"fmt"
)

// ListCharacters returns every character template, built-ins first.
func (db *DB) ListCharacters() ([]Character, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, description, role_instruction, reminder_message,
		        initial_messages, avatar, background, default_model, color, voice, is_original
		 FROM characters ORDER BY is_original DESC, name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	characters := []Character{}
	for rows.Next() {
		ch, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		characters = append(characters, *ch)
	}
	return characters, rows.Err()
}

// GetCharacter retrieves one character template by ID.
func (db *DB) GetCharacter(id string) (*Character, error) {
	row := db.conn.QueryRow(
		`SELECT id, name, description, role_instruction, reminder_message,
		        initial_messages, avatar, background, default_model, color, voice, is_original
		 FROM characters WHERE id = ?`, id,
	)
	ch, err := scanCharacter(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("character not found")
	}
	return ch, err
}

// SaveCharacter inserts or updates a user-authored character template.
// Built-in templates are read-only.
func (db *DB) SaveCharacter(ch *Character) error {
	existing, err := db.GetCharacter(ch.ID)
	if err == nil && existing.IsOriginal {
		return db.logWriteErr(fmt.Errorf("character %q is built-in and cannot be edited", existing.Name))
	}

	initialRaw, err := encodeSegments(ch.InitialMessages)
	if err != nil {
		return db.logWriteErr(err)
	}

	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO characters
		 (id, name, description, role_instruction, reminder_message, initial_messages,
		  avatar, background, default_model, color, voice, is_original)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.Name, ch.Description, ch.RoleInstruction, ch.ReminderMessage,
		initialRaw, ch.Avatar, ch.Background, ch.DefaultModel, ch.Color, ch.Voice,
		boolToInt(ch.IsOriginal),
	)
	if err != nil {
		return db.logWriteErr(fmt.Errorf("failed to save character: %w", err))
	}
	return nil
}

// DeleteCharacter removes a user-authored template. Built-ins stay.
func (db *DB) DeleteCharacter(id string) error {
	existing, err := db.GetCharacter(id)
	if err != nil {
		return err
	}
	if existing.IsOriginal {
		return db.logWriteErr(fmt.Errorf("character %q is built-in and cannot be deleted", existing.Name))
	}
	if _, err := db.conn.Exec("DELETE FROM characters WHERE id = ?", id); err != nil {
		return db.logWriteErr(fmt.Errorf("failed to delete character: %w", err))
	}
	return nil
}

// SeedCharacters inserts the built-in templates once; existing rows are left
// untouched so user edits to anything else survive restarts.
func (db *DB) SeedCharacters(builtins []Character) error {
	for i := range builtins {
		ch := builtins[i]
		ch.IsOriginal = true

		var exists int
		err := db.conn.QueryRow("SELECT COUNT(*) FROM characters WHERE id = ?", ch.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check character: %w", err)
		}
		if exists > 0 {
			continue
		}

		initialRaw, err := encodeSegments(ch.InitialMessages)
		if err != nil {
			return err
		}
		_, err = db.conn.Exec(
			`INSERT INTO characters
			 (id, name, description, role_instruction, reminder_message, initial_messages,
			  avatar, background, default_model, color, voice, is_original)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			ch.ID, ch.Name, ch.Description, ch.RoleInstruction, ch.ReminderMessage,
			initialRaw, ch.Avatar, ch.Background, ch.DefaultModel, ch.Color, ch.Voice,
		)
		if err != nil {
			return db.logWriteErr(fmt.Errorf("failed to seed character: %w", err))
		}
	}
	return nil
}

func scanCharacter(row rowScanner) (*Character, error) {
	var ch Character
	var initialRaw string
	var isOriginal int
	err := row.Scan(
		&ch.ID, &ch.Name, &ch.Description, &ch.RoleInstruction, &ch.ReminderMessage,
		&initialRaw, &ch.Avatar, &ch.Background, &ch.DefaultModel, &ch.Color,
		&ch.Voice, &isOriginal,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan character: %w", err)
	}
	ch.IsOriginal = isOriginal != 0
	ch.InitialMessages, err = decodeSegments(initialRaw)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
