package llm

import "context"

// Provider identifies one of the supported LLM backends. The enumeration is
// closed; the facade fails loudly on anything else.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderGoogleAI   Provider = "google-ai"
	ProviderOllama     Provider = "ollama"
	ProviderOpenRouter Provider = "openrouter"
)

// Providers lists every supported provider in display order.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderGoogleAI, ProviderOllama, ProviderOpenRouter}
}

// Wire roles shared by the OpenAI-shaped providers. Gemini maps assistant to
// "model" internally.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a provider-agnostic wire message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything an adapter needs for one completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ModelInfo describes one model returned by a provider's listing endpoint.
// Tier is a best-effort presentational classification and must never gate
// functional behavior.
type ModelInfo struct {
	ID   string
	Tier string
}

// Tier values for ModelInfo.
const (
	TierFree    = "free"
	TierPro     = "pro"
	TierPremium = "premium"
)

// ChunkFunc receives streaming text fragments strictly in arrival order.
type ChunkFunc func(text string)

// Adapter is the per-provider capability set. Adapters reject calls with a
// ConfigError before any network I/O when their credential is missing, and
// propagate every genuine failure instead of returning empty successes.
type Adapter interface {
	Provider() Provider
	HasCredential() bool
	Complete(ctx context.Context, req Request) (string, error)
	StreamComplete(ctx context.Context, req Request, onChunk ChunkFunc) (string, error)
	ValidateConnection(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
}
