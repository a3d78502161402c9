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

func TestFacadeDefaultsToOpenAI(t *testing.T) {
	facade := NewFacade(NewCredentialCache(newFakeCredentialStore()), Options{}, nil)
	assert.Equal(t, ProviderOpenAI, facade.Provider())
}

func TestFacadeSetProvider(t *testing.T) {
	facade := NewFacade(NewCredentialCache(newFakeCredentialStore()), Options{}, nil)

	for _, p := range Providers() {
		require.NoError(t, facade.SetProvider(p))
		assert.Equal(t, p, facade.Provider())
	}

	err := facade.SetProvider(Provider("claude"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider: "claude"`)
	assert.Equal(t, ProviderOpenRouter, facade.Provider(), "failed switch keeps the previous provider")
}

func TestFacadeAdapterLookup(t *testing.T) {
	facade := NewFacade(NewCredentialCache(newFakeCredentialStore()), Options{}, nil)

	adapter, err := facade.Adapter(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, adapter.Provider())

	_, err = facade.Adapter(Provider("bogus"))
	assert.Error(t, err)
}

func TestFacadeDispatchesToActiveAdapter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		fmt.Fprint(w, `{"message":{"content":"local reply"},"done":true}`)
	}))
	defer server.Close()

	store := newFakeCredentialStore()
	store.keys[string(ProviderOllama)] = server.URL
	facade := NewFacade(NewCredentialCache(store), Options{}, nil)
	require.NoError(t, facade.SetProvider(ProviderOllama))

	got, err := facade.GetCompletion(context.Background(), Request{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "local reply", got)

	assert.True(t, facade.HasCredential(), "ollama never needs a key")
}

func TestFacadeHasCredentialFollowsProvider(t *testing.T) {
	store := newFakeCredentialStore()
	store.keys[string(ProviderOpenAI)] = "sk-test"
	facade := NewFacade(NewCredentialCache(store), Options{}, nil)

	assert.True(t, facade.HasCredential())
	require.NoError(t, facade.SetProvider(ProviderOpenRouter))
	assert.False(t, facade.HasCredential())
}

func TestDefaultModelAndDisplayName(t *testing.T) {
	for _, p := range Providers() {
		model, err := DefaultModel(p)
		require.NoError(t, err)
		assert.NotEmpty(t, model)

		name, err := DisplayName(p)
		require.NoError(t, err)
		assert.NotEmpty(t, name)
	}

	_, err := DefaultModel(Provider("bogus"))
	assert.Error(t, err)
	_, err = DisplayName(Provider("bogus"))
	assert.Error(t, err)
}
