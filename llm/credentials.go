package llm

import "sync"

// CredentialStore is the slice of the local store the credential cache needs.
type CredentialStore interface {
	GetActiveCredential(provider string) string
	HasCredential(provider string) bool
	SaveCredential(provider, key string) error
	DeleteCredentials(provider string) error
}

// CredentialCache keeps the active secret per provider in memory so adapters
// do not hit the store on every call. Saving or removing a credential
// invalidates the cached value synchronously, and subscribers are notified so
// dependent state can refresh. This replaces the old module-level listener
// registry: the cache is an injected object, not a global.
type CredentialCache struct {
	mu     sync.Mutex
	store  CredentialStore
	values map[Provider]*string // nil pointer = unresolved, re-fetch
	subs   []func(Provider)
}

// NewCredentialCache creates a cache backed by the given store.
func NewCredentialCache(store CredentialStore) *CredentialCache {
	return &CredentialCache{
		store:  store,
		values: map[Provider]*string{},
	}
}

// Get returns the active secret for a provider, fetching from the store when
// the cached value is unresolved. Returns "" when none is configured.
func (c *CredentialCache) Get(p Provider) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := c.values[p]; v != nil {
		return *v
	}
	secret := c.store.GetActiveCredential(string(p))
	c.values[p] = &secret
	return secret
}

// Has reports whether a non-empty credential is available for a provider.
func (c *CredentialCache) Has(p Provider) bool {
	return c.Get(p) != ""
}

// Save persists a new credential and invalidates the cached value so the
// very next call sees the fresh secret.
func (c *CredentialCache) Save(p Provider, secret string) error {
	if err := c.store.SaveCredential(string(p), secret); err != nil {
		return err
	}
	c.Invalidate(p)
	return nil
}

// Remove deletes a provider's credentials and invalidates the cache.
func (c *CredentialCache) Remove(p Provider) error {
	if err := c.store.DeleteCredentials(string(p)); err != nil {
		return err
	}
	c.Invalidate(p)
	return nil
}

// Invalidate drops the cached value for a provider and notifies subscribers.
func (c *CredentialCache) Invalidate(p Provider) {
	c.mu.Lock()
	delete(c.values, p)
	subs := make([]func(Provider), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

// Subscribe registers a callback invoked whenever a provider's credential is
// invalidated.
func (c *CredentialCache) Subscribe(fn func(Provider)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}
