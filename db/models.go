package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message sender values. There are exactly two; the system prompt is never
// stored as a message.
const (
	SenderUser      = "user"
	SenderCharacter = "character"
)

// Conversation represents a chat thread between the user and one character
// persona, with its own settings and ordered transcript.
type Conversation struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	UserName         string    `json:"userName"`
	Temperature      float64   `json:"temperature"`
	BackgroundImage  string    `json:"backgroundImage"`
	CharacterImage   string    `json:"characterImage"`
	CharacterName    string    `json:"characterName"`
	CharacterColor   string    `json:"characterColor"`
	CharacterVoice   string    `json:"characterVoice"`
	ConversationBase string    `json:"conversationBase"` // system/role instruction
	InitialMessages  []string  `json:"initialMessages"`  // greeting shown before any stored message
	Messages         []Message `json:"messages"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Message is a single turn owned by exactly one conversation. A logical turn
// may carry several text segments (rendered as separate paragraphs).
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	Segments       []string  `json:"segments"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Text joins the message segments into one block for display and search.
func (m Message) Text() string {
	return strings.Join(m.Segments, "\n\n")
}

// Character is a reusable persona template used to seed new conversations.
// A conversation snapshots the template at creation time; later edits to the
// template do not propagate to existing conversations.
type Character struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	RoleInstruction string   `json:"roleInstruction"`
	ReminderMessage string   `json:"reminderMessage"`
	InitialMessages []string `json:"initialMessages"`
	Avatar          string   `json:"avatar"`
	Background      string   `json:"background"`
	DefaultModel    string   `json:"defaultModel"`
	Color           string   `json:"color"`
	Voice           string   `json:"voice"`
	IsOriginal      bool     `json:"isOriginal"` // built-in, non-editable
}

// Credential stores the secret for one provider. The Ollama provider reuses
// the key slot for its base URL.
type Credential struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Key       string    `json:"key"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

// Segment lists are stored as JSON array columns.

func encodeSegments(segments []string) (string, error) {
	if segments == nil {
		segments = []string{}
	}
	data, err := json.Marshal(segments)
	if err != nil {
		return "", fmt.Errorf("failed to encode segments: %w", err)
	}
	return string(data), nil
}

func decodeSegments(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var segments []string
	if err := json.Unmarshal([]byte(raw), &segments); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}
	return segments, nil
}
