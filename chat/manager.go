package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"charchat/db"
	"charchat/llm"
	"charchat/utils"
)

// Store is the slice of the local store the manager needs. *db.DB satisfies
// it.
type Store interface {
	GetAllConversations() []db.Conversation
	SaveConversation(c *db.Conversation) error
	DeleteConversation(id string) error
	AddMessage(conversationID string, m db.Message) error
	UpdateMessage(conversationID, messageID string, segments []string) error
	DeleteMessage(conversationID, messageID string) error
	ClearMessages(conversationID string) error
	SearchConversations(query string) ([]db.Conversation, error)
	ConversationsByRecency() ([]db.Conversation, error)
	WriteBackupSnapshot(conversations []db.Conversation) error
}

// Completer is the slice of the completion facade the manager needs.
// *llm.Facade satisfies it.
type Completer interface {
	Provider() llm.Provider
	GetCompletion(ctx context.Context, req llm.Request) (string, error)
	GetStreamingCompletion(ctx context.Context, req llm.Request, onChunk llm.ChunkFunc) (string, error)
}

const defaultSaveDebounce = 500 * time.Millisecond

// Manager is the single in-memory source of truth for conversations, the
// selected conversation and in-flight streaming text. Every mutation applies
// in memory first (optimistic), then persists; persistence failures are
// logged and the flat backup snapshot is refreshed instead of rolling back.
type Manager struct {
	mu            sync.Mutex
	store         Store
	completer     Completer
	logger        *utils.Logger
	conversations []*db.Conversation
	selectedID    string
	partials      map[string]string

	model       string
	maxTokens   int
	defaultTemp float64

	saveDelay time.Duration
	saveTimer *time.Timer
	dirty     map[string]bool
}

// NewManager loads all conversations from the store and returns a ready
// manager.
func NewManager(store Store, completer Completer, logger *utils.Logger) *Manager {
	if logger == nil {
		logger = utils.NopLogger()
	}
	m := &Manager{
		store:       store,
		completer:   completer,
		logger:      logger,
		partials:    map[string]string{},
		maxTokens:   4096,
		defaultTemp: 0.7,
		saveDelay:   defaultSaveDebounce,
		dirty:       map[string]bool{},
	}
	for _, conv := range store.GetAllConversations() {
		c := conv
		m.conversations = append(m.conversations, &c)
	}
	return m
}

// SetModel overrides the model used for completions. Empty means the active
// provider's default.
func (m *Manager) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// SetMaxTokens overrides the completion token cap. Non-positive values are
// ignored.
func (m *Manager) SetMaxTokens(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.maxTokens = n
	}
}

// SetDefaultTemperature overrides the sampling temperature new conversations
// start with. Non-positive values are ignored.
func (m *Manager) SetDefaultTemperature(temperature float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if temperature > 0 {
		m.defaultTemp = temperature
	}
}

// SetSaveDebounce adjusts the coalescing window for bulk persistence.
func (m *Manager) SetSaveDebounce(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveDelay = d
}

// Conversations returns the in-memory conversation list in display order.
func (m *Manager) Conversations() []db.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, *c)
	}
	return out
}

// Get returns a snapshot of one conversation.
func (m *Manager) Get(id string) (*db.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.find(id)
	if conv == nil {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	snapshot := *conv
	return &snapshot, nil
}

// Select makes a conversation the active one.
func (m *Manager) Select(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(id) == nil {
		return fmt.Errorf("conversation %s not found", id)
	}
	m.selectedID = id
	return nil
}

// Selected returns the active conversation id, or "".
func (m *Manager) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedID
}

// NewConversation instantiates a conversation from a character snapshot. The
// template and the conversation are decoupled from this point on.
func (m *Manager) NewConversation(ch db.Character, userName string) *db.Conversation {
	base := ch.RoleInstruction
	if strings.TrimSpace(ch.ReminderMessage) != "" {
		base = strings.TrimSpace(base + "\n\n" + ch.ReminderMessage)
	}

	m.mu.Lock()
	temperature := m.defaultTemp
	m.mu.Unlock()

	conv := &db.Conversation{
		ID:               newID(),
		Title:            ch.Name,
		UserName:         userName,
		Temperature:      temperature,
		BackgroundImage:  ch.Background,
		CharacterImage:   ch.Avatar,
		CharacterName:    ch.Name,
		CharacterColor:   ch.Color,
		CharacterVoice:   ch.Voice,
		ConversationBase: base,
		InitialMessages:  append([]string{}, ch.InitialMessages...),
		Messages:         []db.Message{},
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	m.mu.Lock()
	m.conversations = append([]*db.Conversation{conv}, m.conversations...)
	m.selectedID = conv.ID
	m.markDirtyLocked(conv.ID)
	m.mu.Unlock()

	snapshot := *conv
	return &snapshot
}

// SendMessage appends the user's message, persists it, and requests a
// blocking completion with the transcript passed explicitly (no shared-state
// re-read, no artificial delay). On completion failure no character message
// is appended.
func (m *Manager) SendMessage(ctx context.Context, conversationID, text string) (*db.Message, error) {
	req, err := m.appendUserMessage(conversationID, text)
	if err != nil {
		return nil, err
	}

	reply, err := m.completer.GetCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.appendReply(conversationID, reply)
}

// StreamMessage is the streaming variant of SendMessage. Chunks update the
// conversation's in-flight partial text and are forwarded to onChunk in
// arrival order.
func (m *Manager) StreamMessage(ctx context.Context, conversationID, text string, onChunk llm.ChunkFunc) (*db.Message, error) {
	req, err := m.appendUserMessage(conversationID, text)
	if err != nil {
		return nil, err
	}
	return m.streamReply(ctx, conversationID, req, onChunk)
}

// RegenerateReply drops the trailing character turn (if any) and requests a
// fresh completion for the remaining transcript.
func (m *Manager) RegenerateReply(ctx context.Context, conversationID string) (*db.Message, error) {
	m.mu.Lock()
	conv := m.find(conversationID)
	if conv == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}
	var removedID string
	if n := len(conv.Messages); n > 0 && conv.Messages[n-1].Sender == db.SenderCharacter {
		removedID = conv.Messages[n-1].ID
		conv.Messages = conv.Messages[:n-1]
	}
	req := m.requestForLocked(conv)
	m.mu.Unlock()

	if removedID != "" {
		m.persist(conversationID, func() error {
			return m.store.DeleteMessage(conversationID, removedID)
		})
	}

	reply, err := m.completer.GetCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.appendReply(conversationID, reply)
}

// EditMessage replaces a message's text.
func (m *Manager) EditMessage(conversationID, messageID, text string) error {
	segments := splitSegments(text)

	m.mu.Lock()
	conv := m.find(conversationID)
	if conv == nil {
		m.mu.Unlock()
		return fmt.Errorf("conversation %s not found", conversationID)
	}
	found := false
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages[i].Segments = segments
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return fmt.Errorf("message %s not found in conversation %s", messageID, conversationID)
	}

	m.persist(conversationID, func() error {
		return m.store.UpdateMessage(conversationID, messageID, segments)
	})
	return nil
}

// DeleteMessage removes one message.
func (m *Manager) DeleteMessage(conversationID, messageID string) error {
	m.mu.Lock()
	conv := m.find(conversationID)
	if conv == nil {
		m.mu.Unlock()
		return fmt.Errorf("conversation %s not found", conversationID)
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages = append(conv.Messages[:i], conv.Messages[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.persist(conversationID, func() error {
		return m.store.DeleteMessage(conversationID, messageID)
	})
	return nil
}

// ClearMessages removes every message but keeps the conversation.
func (m *Manager) ClearMessages(conversationID string) error {
	m.mu.Lock()
	conv := m.find(conversationID)
	if conv == nil {
		m.mu.Unlock()
		return fmt.Errorf("conversation %s not found", conversationID)
	}
	conv.Messages = []db.Message{}
	m.mu.Unlock()

	m.persist(conversationID, func() error {
		return m.store.ClearMessages(conversationID)
	})
	return nil
}

// DeleteConversation removes a conversation and its messages everywhere.
func (m *Manager) DeleteConversation(id string) error {
	m.mu.Lock()
	idx := -1
	for i, c := range m.conversations {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("conversation %s not found", id)
	}
	m.conversations = append(m.conversations[:idx], m.conversations[idx+1:]...)
	if m.selectedID == id {
		m.selectedID = ""
	}
	delete(m.partials, id)
	delete(m.dirty, id)
	m.mu.Unlock()

	m.persist("", func() error {
		return m.store.DeleteConversation(id)
	})
	return nil
}

// RenameConversation changes the title.
func (m *Manager) RenameConversation(id, title string) error {
	return m.mutateConversation(id, func(c *db.Conversation) {
		c.Title = title
	})
}

// SetTemperature changes the conversation's sampling temperature.
func (m *Manager) SetTemperature(id string, temperature float64) error {
	return m.mutateConversation(id, func(c *db.Conversation) {
		c.Temperature = temperature
	})
}

// SetUserName changes the display name the user goes by in a conversation.
func (m *Manager) SetUserName(id, userName string) error {
	return m.mutateConversation(id, func(c *db.Conversation) {
		c.UserName = userName
	})
}

// Duplicate deep-copies a conversation. The copy gets a fresh id, fresh ids
// for every message, and a " (Copy)" title suffix; all other fields are
// preserved.
func (m *Manager) Duplicate(id string) (*db.Conversation, error) {
	m.mu.Lock()
	src := m.find(id)
	if src == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("conversation %s not found", id)
	}

	clone := *src
	clone.ID = newID()
	clone.Title = src.Title + " (Copy)"
	clone.CreatedAt = time.Now()
	clone.UpdatedAt = time.Now()
	clone.InitialMessages = append([]string{}, src.InitialMessages...)
	clone.Messages = make([]db.Message, len(src.Messages))
	for i, msg := range src.Messages {
		copied := msg
		copied.ID = newID()
		copied.ConversationID = clone.ID
		copied.Segments = append([]string{}, msg.Segments...)
		clone.Messages[i] = copied
	}

	m.conversations = append([]*db.Conversation{&clone}, m.conversations...)
	m.markDirtyLocked(clone.ID)
	m.mu.Unlock()

	snapshot := clone
	return &snapshot, nil
}

// Search finds conversations matching the query. The indexed store path is
// primary; on failure it falls back to an in-memory scan using the same
// predicate the store mirrors.
func (m *Manager) Search(query string) []db.Conversation {
	results, err := m.store.SearchConversations(query)
	if err == nil {
		return results
	}
	m.logger.Warn("indexed search failed, falling back to in-memory scan: %v", err)

	m.mu.Lock()
	defer m.mu.Unlock()
	out := []db.Conversation{}
	for _, c := range m.conversations {
		if db.MatchesQuery(c, query) {
			out = append(out, *c)
		}
	}
	return out
}

// SortedByRecency returns conversations newest-activity-first. The store
// path is primary; the fallback orders by the last message's creation time,
// then the conversation's own.
func (m *Manager) SortedByRecency() []db.Conversation {
	results, err := m.store.ConversationsByRecency()
	if err == nil {
		return results
	}
	m.logger.Warn("store recency query failed, sorting in memory: %v", err)

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return lastActivity(&out[i]).After(lastActivity(&out[j]))
	})
	return out
}

// Partial returns the in-flight streaming text for a conversation, or "".
func (m *Manager) Partial(conversationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partials[conversationID]
}

// Close flushes any pending debounced writes.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
		m.saveTimer = nil
	}
	m.mu.Unlock()
	m.flushDirty()
}

func (m *Manager) find(id string) *db.Conversation {
	for _, c := range m.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *Manager) mutateConversation(id string, fn func(*db.Conversation)) error {
	m.mu.Lock()
	conv := m.find(id)
	if conv == nil {
		m.mu.Unlock()
		return fmt.Errorf("conversation %s not found", id)
	}
	fn(conv)
	conv.UpdatedAt = time.Now()
	m.markDirtyLocked(id)
	m.mu.Unlock()
	return nil
}

// requestForLocked builds the completion request from a conversation while
// the manager lock is held, so the transcript travels with the call instead
// of being re-read later.
func (m *Manager) requestForLocked(conv *db.Conversation) llm.Request {
	model := m.model
	if model == "" {
		if def, err := llm.DefaultModel(m.completer.Provider()); err == nil {
			model = def
		}
	}
	return llm.Request{
		Model:       model,
		Messages:    llm.BuildMessages(conv),
		Temperature: conv.Temperature,
		MaxTokens:   m.maxTokens,
	}
}

func (m *Manager) appendUserMessage(conversationID, text string) (llm.Request, error) {
	msg := db.Message{
		ID:             newID(),
		ConversationID: conversationID,
		Sender:         db.SenderUser,
		Segments:       splitSegments(text),
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	conv := m.find(conversationID)
	if conv == nil {
		m.mu.Unlock()
		return llm.Request{}, fmt.Errorf("conversation %s not found", conversationID)
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.CreatedAt
	req := m.requestForLocked(conv)
	m.mu.Unlock()

	m.persist(conversationID, func() error {
		return m.store.AddMessage(conversationID, msg)
	})
	return req, nil
}

func (m *Manager) streamReply(ctx context.Context, conversationID string, req llm.Request, onChunk llm.ChunkFunc) (*db.Message, error) {
	m.mu.Lock()
	m.partials[conversationID] = ""
	m.mu.Unlock()

	reply, err := m.completer.GetStreamingCompletion(ctx, req, func(chunk string) {
		m.mu.Lock()
		m.partials[conversationID] += chunk
		m.mu.Unlock()
		if onChunk != nil {
			onChunk(chunk)
		}
	})

	m.mu.Lock()
	delete(m.partials, conversationID)
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.appendReply(conversationID, reply)
}

func (m *Manager) appendReply(conversationID, reply string) (*db.Message, error) {
	msg := db.Message{
		ID:             newID(),
		ConversationID: conversationID,
		Sender:         db.SenderCharacter,
		Segments:       splitSegments(reply),
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	conv := m.find(conversationID)
	if conv == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("conversation %s was deleted during completion", conversationID)
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.CreatedAt
	m.mu.Unlock()

	m.persist(conversationID, func() error {
		return m.store.AddMessage(conversationID, msg)
	})
	return &msg, nil
}

// persist runs a store write. Failures never roll back in-memory state; the
// flat backup snapshot is refreshed instead.
func (m *Manager) persist(conversationID string, write func() error) {
	if err := write(); err != nil {
		m.logger.Error("persistence failed for conversation %s: %v", conversationID, err)
		m.writeBackup()
	}
}

func (m *Manager) writeBackup() {
	if err := m.store.WriteBackupSnapshot(m.Conversations()); err != nil {
		m.logger.Error("backup snapshot write failed: %v", err)
	}
}

// markDirtyLocked records a conversation for the next debounced flush and
// (re)arms the timer. Caller holds m.mu.
func (m *Manager) markDirtyLocked(id string) {
	m.dirty[id] = true
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(m.saveDelay, m.flushDirty)
}

func (m *Manager) flushDirty() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.dirty))
	for id := range m.dirty {
		ids = append(ids, id)
	}
	m.dirty = map[string]bool{}
	snapshots := make([]db.Conversation, 0, len(ids))
	for _, id := range ids {
		if conv := m.find(id); conv != nil {
			snapshots = append(snapshots, *conv)
		}
	}
	m.mu.Unlock()

	for i := range snapshots {
		conv := snapshots[i]
		m.persist(conv.ID, func() error {
			return m.store.SaveConversation(&conv)
		})
	}
}

func lastActivity(c *db.Conversation) time.Time {
	if n := len(c.Messages); n > 0 {
		return c.Messages[n-1].CreatedAt
	}
	return c.CreatedAt
}
