package llm

import (
	"strings"

	"charchat/db"
)

// BuildMessages assembles the wire transcript for a conversation. The order
// is fixed across all providers: system/role instruction first, then the
// character's initial greeting as the first character-authored turn, then
// every stored message in transcript order.
func BuildMessages(conv *db.Conversation) []Message {
	messages := []Message{}

	if strings.TrimSpace(conv.ConversationBase) != "" {
		messages = append(messages, Message{
			Role:    RoleSystem,
			Content: conv.ConversationBase,
		})
	}

	if len(conv.InitialMessages) > 0 {
		messages = append(messages, Message{
			Role:    RoleAssistant,
			Content: strings.Join(conv.InitialMessages, "\n\n"),
		})
	}

	for _, m := range conv.Messages {
		role := RoleUser
		if m.Sender == db.SenderCharacter {
			role = RoleAssistant
		}
		messages = append(messages, Message{
			Role:    role,
			Content: m.Text(),
		})
	}

	return messages
}

// ensureTranscript guarantees the wire transcript is never empty: providers
// reject an empty messages array, so a conversation with no system
// instruction, no greeting and no stored turns gets a minimal user turn.
// The Gemini preparation synthesizes the same turn on its own path.
func ensureTranscript(msgs []Message) []Message {
	if len(msgs) > 0 {
		return msgs
	}
	return []Message{{Role: RoleUser, Content: "Hello"}}
}

// chatMessages strips any leading system message, for providers that carry
// the instruction out of band.
func chatMessages(msgs []Message) (system string, rest []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
