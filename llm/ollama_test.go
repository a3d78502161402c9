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

// ollamaTestAdapter points the adapter at a local test server by storing the
// URL in the provider's credential slot.
func ollamaTestAdapter(serverURL string) *OllamaAdapter {
	store := newFakeCredentialStore()
	store.keys[string(ProviderOllama)] = serverURL
	return NewOllamaAdapter(NewCredentialCache(store), nil)
}

func TestOllamaNeverRequiresCredential(t *testing.T) {
	adapter := NewOllamaAdapter(NewCredentialCache(newFakeCredentialStore()), nil)
	assert.True(t, adapter.HasCredential())
}

func TestOllamaDefaultBaseURL(t *testing.T) {
	adapter := NewOllamaAdapter(NewCredentialCache(newFakeCredentialStore()), nil)
	assert.Equal(t, "http://localhost:11434", adapter.baseURL())

	adapter = ollamaTestAdapter("http://example.test:9999")
	assert.Equal(t, "http://example.test:9999", adapter.baseURL())
}

func TestOllamaComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"hello from llama"},"done":true}`)
	}))
	defer server.Close()

	adapter := ollamaTestAdapter(server.URL)
	got, err := adapter.Complete(context.Background(), Request{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from llama", got)
}

func TestOllamaStreamSkipsMalformedLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"one "},"done":false}`)
		fmt.Fprintln(w, `{broken json`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"message":{"content":"two"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
		fmt.Fprintln(w, `{"message":{"content":"never delivered"},"done":false}`)
	}))
	defer server.Close()

	adapter := ollamaTestAdapter(server.URL)

	var chunks []string
	got, err := adapter.StreamComplete(context.Background(), Request{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(text string) {
		chunks = append(chunks, text)
	})

	require.NoError(t, err)
	assert.Equal(t, "one two", got)
	assert.Equal(t, []string{"one ", "two"}, chunks, "done:true terminates the stream")
}

func TestOllamaCompleteEmptyTranscript(t *testing.T) {
	var received ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		fmt.Fprint(w, `{"message":{"content":"hi"},"done":true}`)
	}))
	defer server.Close()

	adapter := ollamaTestAdapter(server.URL)
	_, err := adapter.Complete(context.Background(), Request{Model: "llama3"})
	require.NoError(t, err)

	require.Len(t, received.Messages, 1, "empty transcript gets a synthesized turn")
	assert.Equal(t, RoleUser, received.Messages[0].Role)
	assert.NotEmpty(t, received.Messages[0].Content)
}

func TestOllamaCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer server.Close()

	adapter := ollamaTestAdapter(server.URL)
	_, err := adapter.Complete(context.Background(), Request{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestOllamaValidateConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	adapter := ollamaTestAdapter(server.URL)
	assert.True(t, adapter.ValidateConnection(context.Background()))

	server.Close()
	assert.False(t, adapter.ValidateConnection(context.Background()))
}

func TestOllamaListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama3:latest"},{"name":"mistral:7b"}]}`)
	}))
	defer server.Close()

	adapter := ollamaTestAdapter(server.URL)
	models, err := adapter.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3:latest", models[0].ID)
}
