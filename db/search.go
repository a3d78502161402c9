package db

import (
	"fmt"
	"strings"
)

// MatchesQuery is the single search predicate used by both the indexed path
// (mirrored in SQL below) and the in-memory fallback in the chat package:
// case-insensitive substring match over title, character name and every
// message segment.
func MatchesQuery(c *Conversation, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(c.CharacterName), q) {
		return true
	}
	for _, m := range c.Messages {
		for _, s := range m.Segments {
			if strings.Contains(strings.ToLower(s), q) {
				return true
			}
		}
	}
	return false
}

// SearchConversations finds conversations whose title, character name or
// message text matches the query, most recently updated first. Message text
// goes through the FTS index and title/character name through a LIKE scan,
// but MatchesQuery has the final word so both search paths agree exactly.
func (db *DB) SearchConversations(query string) ([]Conversation, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return db.ConversationsByRecency()
	}

	ids := map[string]bool{}

	likePattern := "%" + q + "%"
	rows, err := db.conn.Query(
		`SELECT id FROM conversations
		 WHERE lower(title) LIKE ? OR lower(character_name) LIKE ?`,
		likePattern, likePattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search conversations: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		ids[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	// Quote the user query so FTS treats it as a literal phrase rather than
	// match syntax.
	ftsQuery := `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
	ftsRows, err := db.conn.Query(
		"SELECT DISTINCT conversation_id FROM messages_fts WHERE messages_fts MATCH ?",
		ftsQuery,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	for ftsRows.Next() {
		var id string
		if err := ftsRows.Scan(&id); err != nil {
			ftsRows.Close()
			return nil, fmt.Errorf("failed to scan message search result: %w", err)
		}
		ids[id] = true
	}
	ftsRows.Close()
	if err := ftsRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message search results: %w", err)
	}

	all, err := db.ConversationsByRecency()
	if err != nil {
		return nil, err
	}

	// The SQL candidates are an accelerator only; the predicate decides.
	// SQLite's lower() folds ASCII while MatchesQuery folds Unicode, so
	// non-ASCII matches are picked up here.
	results := []Conversation{}
	for i := range all {
		if ids[all[i].ID] || MatchesQuery(&all[i], query) {
			results = append(results, all[i])
		}
	}
	return results, nil
}
