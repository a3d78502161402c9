package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to OpenAI (or any OpenAI-compatible endpoint) through
// the official-style SDK client.
type OpenAIAdapter struct {
	creds   *CredentialCache
	baseURL string
}

// NewOpenAIAdapter creates the OpenAI adapter. baseURL overrides the SDK
// default when non-empty.
func NewOpenAIAdapter(creds *CredentialCache, baseURL string) *OpenAIAdapter {
	return &OpenAIAdapter{creds: creds, baseURL: baseURL}
}

// Provider returns the provider identifier.
func (a *OpenAIAdapter) Provider() Provider { return ProviderOpenAI }

// HasCredential reports whether an API key is configured.
func (a *OpenAIAdapter) HasCredential() bool { return a.creds.Has(ProviderOpenAI) }

func (a *OpenAIAdapter) client() (*openai.Client, error) {
	key := a.creds.Get(ProviderOpenAI)
	if key == "" {
		return nil, &ConfigError{Provider: ProviderOpenAI}
	}
	cfg := openai.DefaultConfig(key)
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	return openai.NewClientWithConfig(cfg), nil
}

// Complete issues one blocking completion call.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (string, error) {
	client, err := a.client()
	if err != nil {
		return "", err
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(ensureTranscript(req.Messages)),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", wrapOpenAIErr(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &ProtocolError{Reason: "completion contained no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamComplete issues a streaming completion, invoking onChunk for every
// text delta and returning the accumulated text.
func (a *OpenAIAdapter) StreamComplete(ctx context.Context, req Request, onChunk ChunkFunc) (string, error) {
	client, err := a.client()
	if err != nil {
		return "", err
	}

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(ensureTranscript(req.Messages)),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return "", wrapOpenAIErr(err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", wrapOpenAIErr(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}

	if text.Len() == 0 {
		return "", &ProtocolError{Reason: "stream produced no content"}
	}
	return text.String(), nil
}

// ValidateConnection performs a cheap authenticated call (model listing) and
// reports success.
func (a *OpenAIAdapter) ValidateConnection(ctx context.Context) bool {
	_, err := a.ListModels(ctx)
	return err == nil
}

// ListModels returns the chat-capable model ids, ascending.
func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, wrapOpenAIErr(err)
	}

	models := []ModelInfo{}
	for _, m := range list.Models {
		if !isChatModelID(m.ID) {
			continue
		}
		models = append(models, ModelInfo{ID: m.ID})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// isChatModelID filters out embedding, image, audio and moderation models.
func isChatModelID(id string) bool {
	lower := strings.ToLower(id)
	excluded := []string{
		"embed", "whisper", "tts", "dall-e", "image",
		"audio", "realtime", "moderation", "vision", "transcribe",
	}
	for _, needle := range excluded {
		if strings.Contains(lower, needle) {
			return false
		}
	}
	return true
}

func wrapOpenAIErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &TransportError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	return fmt.Errorf("openai request failed: %w", err)
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}
