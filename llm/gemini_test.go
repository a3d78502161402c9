package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiTestCache(key string) *CredentialCache {
	store := newFakeCredentialStore()
	if key != "" {
		store.keys[string(ProviderGoogleAI)] = key
	}
	return NewCredentialCache(store)
}

func TestPrepareContentsMapsRoles(t *testing.T) {
	system, contents := prepareContents([]Message{
		{Role: RoleSystem, Content: "You are Aria."},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello!"},
		{Role: RoleUser, Content: "how are you?"},
	})

	assert.Equal(t, "You are Aria.", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, "how are you?", contents[2].Parts[0].Text)
}

func TestPrepareContentsTrimsTrailingModelTurns(t *testing.T) {
	_, contents := prepareContents([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello!"},
		{Role: RoleAssistant, Content: "anyone there?"},
	})

	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].Role)
}

func TestPrepareContentsSynthesizesUserTurn(t *testing.T) {
	// Greeting-only transcript: nothing user-authored yet.
	_, contents := prepareContents([]Message{
		{Role: RoleAssistant, Content: "Welcome, traveler."},
	})

	require.NotEmpty(t, contents)
	assert.Equal(t, "model", contents[0].Role, "greeting kept for context")
	last := contents[len(contents)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "Hello", last.Parts[0].Text)
}

func TestPrepareContentsNeverEndsOnModel(t *testing.T) {
	cases := [][]Message{
		{},
		{{Role: RoleAssistant, Content: "a"}},
		{{Role: RoleUser, Content: "u"}},
		{{Role: RoleUser, Content: "u"}, {Role: RoleAssistant, Content: "a"}},
		{{Role: RoleSystem, Content: "s"}, {Role: RoleAssistant, Content: "a"}, {Role: RoleAssistant, Content: "b"}},
	}
	for i, msgs := range cases {
		_, contents := prepareContents(msgs)
		require.NotEmpty(t, contents, "case %d", i)
		assert.Equal(t, "user", contents[len(contents)-1].Role, "case %d", i)
	}
}

func TestGeminiCompleteRequiresCredential(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(geminiTestCache(""), server.URL, nil)
	_, err := adapter.Complete(context.Background(), Request{Model: "gemini-1.5-flash"})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ProviderGoogleAI, cfgErr.Provider)
	assert.Zero(t, calls, "no network traffic without a credential")
}

func TestGeminiStreamSkipsMalformedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {malformed\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]}}]}\n\n")
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(geminiTestCache("key"), server.URL, nil)

	var chunks []string
	got, err := adapter.StreamComplete(context.Background(), Request{
		Model:    "gemini-1.5-flash",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(text string) {
		chunks = append(chunks, text)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestGeminiCompleteTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(geminiTestCache("key"), server.URL, nil)
	_, err := adapter.Complete(context.Background(), Request{
		Model:    "gemini-1.5-flash",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusTooManyRequests, transportErr.Status)
}

func TestGeminiCompleteEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(geminiTestCache("key"), server.URL, nil)
	_, err := adapter.Complete(context.Background(), Request{
		Model:    "gemini-1.5-flash",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestGeminiModelFilterAndOrder(t *testing.T) {
	assert.True(t, isGeminiChatModelID("gemini-1.5-pro"))
	assert.False(t, isGeminiChatModelID("text-embedding-004"))
	assert.False(t, isGeminiChatModelID("gemini-embedding-exp"))
	assert.False(t, isGeminiChatModelID("gemma-2-9b"))

	ids := []string{
		"gemini-2.0-flash-exp",
		"gemini-1.5-pro",
		"gemini-1.5-flash-preview",
		"gemini-1.5-flash",
	}
	sortGeminiModelIDs(ids)
	assert.Equal(t, []string{
		"gemini-1.5-flash",
		"gemini-1.5-pro",
		"gemini-1.5-flash-preview",
		"gemini-2.0-flash-exp",
	}, ids, "stable releases before experimental/preview, lexicographic within")
}
