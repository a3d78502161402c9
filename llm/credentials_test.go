package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCredentialStore struct {
	keys   map[string]string
	reads  int
	saves  int
	remove int
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{keys: map[string]string{}}
}

func (s *fakeCredentialStore) GetActiveCredential(provider string) string {
	s.reads++
	return s.keys[provider]
}

func (s *fakeCredentialStore) HasCredential(provider string) bool {
	return s.keys[provider] != ""
}

func (s *fakeCredentialStore) SaveCredential(provider, key string) error {
	s.saves++
	s.keys[provider] = key
	return nil
}

func (s *fakeCredentialStore) DeleteCredentials(provider string) error {
	s.remove++
	delete(s.keys, provider)
	return nil
}

func TestCredentialCacheMemoizes(t *testing.T) {
	store := newFakeCredentialStore()
	store.keys["openai"] = "secret"
	cache := NewCredentialCache(store)

	assert.Equal(t, "secret", cache.Get(ProviderOpenAI))
	assert.Equal(t, "secret", cache.Get(ProviderOpenAI))
	assert.Equal(t, "secret", cache.Get(ProviderOpenAI))
	assert.Equal(t, 1, store.reads, "store consulted once until invalidation")
}

func TestCredentialCacheCachesMisses(t *testing.T) {
	store := newFakeCredentialStore()
	cache := NewCredentialCache(store)

	assert.False(t, cache.Has(ProviderGoogleAI))
	assert.False(t, cache.Has(ProviderGoogleAI))
	assert.Equal(t, 1, store.reads, "absence is cached too")
}

func TestCredentialCacheInvalidateRefetches(t *testing.T) {
	store := newFakeCredentialStore()
	store.keys["openai"] = "old"
	cache := NewCredentialCache(store)

	require.Equal(t, "old", cache.Get(ProviderOpenAI))
	store.keys["openai"] = "new"
	assert.Equal(t, "old", cache.Get(ProviderOpenAI), "stale until invalidated")

	cache.Invalidate(ProviderOpenAI)
	assert.Equal(t, "new", cache.Get(ProviderOpenAI))
}

func TestCredentialCacheSaveUpdatesImmediately(t *testing.T) {
	store := newFakeCredentialStore()
	cache := NewCredentialCache(store)

	require.Equal(t, "", cache.Get(ProviderOpenRouter))
	require.NoError(t, cache.Save(ProviderOpenRouter, "fresh"))
	assert.Equal(t, "fresh", cache.Get(ProviderOpenRouter))
	assert.Equal(t, 1, store.saves)

	require.NoError(t, cache.Remove(ProviderOpenRouter))
	assert.Equal(t, "", cache.Get(ProviderOpenRouter))
}

func TestCredentialCacheNotifiesSubscribers(t *testing.T) {
	store := newFakeCredentialStore()
	cache := NewCredentialCache(store)

	var notified []Provider
	cache.Subscribe(func(p Provider) {
		notified = append(notified, p)
	})

	require.NoError(t, cache.Save(ProviderOpenAI, "key"))
	cache.Invalidate(ProviderGoogleAI)

	assert.Equal(t, []Provider{ProviderOpenAI, ProviderGoogleAI}, notified)
}
