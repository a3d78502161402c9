package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAITestAdapter(serverURL, key string) *OpenAIAdapter {
	store := newFakeCredentialStore()
	if key != "" {
		store.keys[string(ProviderOpenAI)] = key
	}
	return NewOpenAIAdapter(NewCredentialCache(store), serverURL)
}

func TestOpenAICompleteRequiresCredential(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	adapter := openAITestAdapter(server.URL, "")
	_, err := adapter.Complete(context.Background(), Request{Model: "gpt-4o-mini"})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ProviderOpenAI, cfgErr.Provider)
	assert.Contains(t, cfgErr.Error(), "OpenAI")
	assert.Zero(t, calls, "no network traffic without a credential")

	_, err = adapter.StreamComplete(context.Background(), Request{Model: "gpt-4o-mini"}, nil)
	assert.ErrorAs(t, err, &cfgErr)
	_, err = adapter.ListModels(context.Background())
	assert.ErrorAs(t, err, &cfgErr)
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hello!"}}]}`)
	}))
	defer server.Close()

	adapter := openAITestAdapter(server.URL, "sk-test")
	got, err := adapter.Complete(context.Background(), Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello!", got)
}

func TestOpenAICompleteEmptyTranscript(t *testing.T) {
	var received struct {
		Messages []Message `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	}))
	defer server.Close()

	adapter := openAITestAdapter(server.URL, "sk-test")
	_, err := adapter.Complete(context.Background(), Request{Model: "gpt-4o-mini"})
	require.NoError(t, err)

	require.Len(t, received.Messages, 1, "empty transcript gets a synthesized turn")
	assert.Equal(t, RoleUser, received.Messages[0].Role)
	assert.NotEmpty(t, received.Messages[0].Content)
}

func TestOpenAICompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	adapter := openAITestAdapter(server.URL, "sk-test")
	_, err := adapter.Complete(context.Background(), Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestOpenAIStreamComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	adapter := openAITestAdapter(server.URL, "sk-test")

	var chunks []string
	got, err := adapter.StreamComplete(context.Background(), Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(text string) {
		chunks = append(chunks, text)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestOpenAITransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	adapter := openAITestAdapter(server.URL, "sk-bad")
	_, err := adapter.Complete(context.Background(), Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusUnauthorized, transportErr.Status)
}

func TestOpenAIListModelsFiltersNonChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":"gpt-4o-mini"},
			{"id":"text-embedding-3-small"},
			{"id":"whisper-1"},
			{"id":"dall-e-3"},
			{"id":"gpt-4o"}
		]}`)
	}))
	defer server.Close()

	adapter := openAITestAdapter(server.URL, "sk-test")
	models, err := adapter.ListModels(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, ids, "chat models only, ascending")
}
