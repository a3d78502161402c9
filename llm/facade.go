package llm

import (
	"context"
	"fmt"
	"sync"

	"charchat/utils"
)

var displayNames = map[Provider]string{
	ProviderOpenAI:     "OpenAI",
	ProviderGoogleAI:   "Google AI",
	ProviderOllama:     "Ollama",
	ProviderOpenRouter: "OpenRouter",
}

var defaultModels = map[Provider]string{
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderGoogleAI:   "gemini-1.5-flash",
	ProviderOllama:     "llama3",
	ProviderOpenRouter: "openai/gpt-4o-mini",
}

// Options configures adapter endpoints and OpenRouter attribution.
type Options struct {
	OpenAIBaseURL     string
	GeminiBaseURL     string
	OpenRouterBaseURL string
	Referer           string
	AppTitle          string
}

// Facade hides the provider enumeration behind one interface keyed by the
// currently selected provider. It performs no retries, no caching and no
// cross-provider fallback; all of that complexity belongs to the adapters or
// the caller.
type Facade struct {
	mu       sync.Mutex
	active   Provider
	adapters map[Provider]Adapter
}

// NewFacade builds all four adapters once and starts with OpenAI selected.
func NewFacade(creds *CredentialCache, opts Options, logger *utils.Logger) *Facade {
	adapters := map[Provider]Adapter{
		ProviderOpenAI:   NewOpenAIAdapter(creds, opts.OpenAIBaseURL),
		ProviderGoogleAI: NewGeminiAdapter(creds, opts.GeminiBaseURL, logger),
		ProviderOllama:   NewOllamaAdapter(creds, logger),
		ProviderOpenRouter: NewOpenRouterAdapter(
			creds, opts.OpenRouterBaseURL, opts.Referer, opts.AppTitle, logger,
		),
	}
	return &Facade{active: ProviderOpenAI, adapters: adapters}
}

// SetProvider selects the active provider. Unknown ids are programming
// errors and fail loudly.
func (f *Facade) SetProvider(p Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.adapters[p]; !ok {
		return fmt.Errorf("unknown provider: %q", p)
	}
	f.active = p
	return nil
}

// Provider returns the active provider id.
func (f *Facade) Provider() Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Facade) adapter() Adapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adapters[f.active]
}

// Adapter returns the adapter for a specific provider, erroring on unknown
// ids.
func (f *Facade) Adapter(p Provider) (Adapter, error) {
	a, ok := f.adapters[p]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %q", p)
	}
	return a, nil
}

// GetCompletion dispatches a blocking completion to the active adapter.
func (f *Facade) GetCompletion(ctx context.Context, req Request) (string, error) {
	return f.adapter().Complete(ctx, req)
}

// GetStreamingCompletion dispatches a streaming completion to the active
// adapter.
func (f *Facade) GetStreamingCompletion(ctx context.Context, req Request, onChunk ChunkFunc) (string, error) {
	return f.adapter().StreamComplete(ctx, req, onChunk)
}

// ValidateConnection checks the active provider's connectivity.
func (f *Facade) ValidateConnection(ctx context.Context) bool {
	return f.adapter().ValidateConnection(ctx)
}

// HasCredential reports whether the active provider is usable.
func (f *Facade) HasCredential() bool {
	return f.adapter().HasCredential()
}

// ListModels lists the active provider's models.
func (f *Facade) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return f.adapter().ListModels(ctx)
}

// DefaultModel returns the default model id for a provider. Unknown ids are
// programming errors.
func DefaultModel(p Provider) (string, error) {
	model, ok := defaultModels[p]
	if !ok {
		return "", fmt.Errorf("unknown provider: %q", p)
	}
	return model, nil
}

// DisplayName returns the human-readable provider name. Unknown ids are
// programming errors.
func DisplayName(p Provider) (string, error) {
	name, ok := displayNames[p]
	if !ok {
		return "", fmt.Errorf("unknown provider: %q", p)
	}
	return name, nil
}
