package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"charchat/utils"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// openRouterPopular fixes the ordering of well-known models at the top of
// the model list; everything else sorts lexicographically after them.
var openRouterPopular = []string{
	"openai/gpt-4o",
	"openai/gpt-4o-mini",
	"anthropic/claude-3.5-sonnet",
	"anthropic/claude-3-haiku",
	"google/gemini-flash-1.5",
	"meta-llama/llama-3.1-70b-instruct",
	"mistralai/mistral-large",
}

// OpenRouterAdapter talks to the OpenRouter aggregator. Requests are
// OpenAI-shaped plus the attribution headers the aggregator requires.
type OpenRouterAdapter struct {
	creds    *CredentialCache
	baseURL  string
	referer  string
	appTitle string
	client   *http.Client
	logger   *utils.Logger
}

// NewOpenRouterAdapter creates the OpenRouter adapter. referer and appTitle
// populate the HTTP-Referer and X-Title attribution headers.
func NewOpenRouterAdapter(creds *CredentialCache, baseURL, referer, appTitle string, logger *utils.Logger) *OpenRouterAdapter {
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &OpenRouterAdapter{
		creds:    creds,
		baseURL:  baseURL,
		referer:  referer,
		appTitle: appTitle,
		client:   &http.Client{},
		logger:   logger,
	}
}

type openRouterChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type openRouterChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openRouterStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Provider returns the provider identifier.
func (a *OpenRouterAdapter) Provider() Provider { return ProviderOpenRouter }

// HasCredential reports whether an API key is configured.
func (a *OpenRouterAdapter) HasCredential() bool { return a.creds.Has(ProviderOpenRouter) }

func (a *OpenRouterAdapter) setHeaders(req *http.Request, key string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("HTTP-Referer", a.referer)
	req.Header.Set("X-Title", a.appTitle)
}

func (a *OpenRouterAdapter) key() (string, error) {
	key := a.creds.Get(ProviderOpenRouter)
	if key == "" {
		return "", &ConfigError{Provider: ProviderOpenRouter}
	}
	return key, nil
}

// Complete issues one blocking completion call.
func (a *OpenRouterAdapter) Complete(ctx context.Context, req Request) (string, error) {
	key, err := a.key()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(openRouterChatRequest{
		Model:       req.Model,
		Messages:    ensureTranscript(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	a.setHeaders(httpReq, key)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &TransportError{Status: resp.StatusCode, Body: string(raw)}
	}

	var chatResp openRouterChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", &ProtocolError{Reason: "completion contained no choices"}
	}
	return chatResp.Choices[0].Message.Content, nil
}

// StreamComplete issues a streaming completion. The stream uses SSE framing:
// "data: " prefixed lines terminated by a literal [DONE] sentinel. Malformed
// payloads are skipped without aborting the stream.
func (a *OpenRouterAdapter) StreamComplete(ctx context.Context, req Request, onChunk ChunkFunc) (string, error) {
	key, err := a.key()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(openRouterChatRequest{
		Model:       req.Model,
		Messages:    ensureTranscript(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	a.setHeaders(httpReq, key)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &TransportError{Status: resp.StatusCode, Body: string(raw)}
	}

	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		if data == "" {
			continue
		}

		var chunk openRouterStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
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
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read error: %w", err)
	}

	if text.Len() == 0 {
		return "", &ProtocolError{Reason: "stream produced no content"}
	}
	return text.String(), nil
}

// ValidateConnection performs a cheap authenticated call and reports success.
func (a *OpenRouterAdapter) ValidateConnection(ctx context.Context) bool {
	if !a.HasCredential() {
		return false
	}
	_, err := a.ListModels(ctx)
	return err == nil
}

type openRouterModelList struct {
	Data []struct {
		ID           string `json:"id"`
		Architecture struct {
			Modality string `json:"modality"`
		} `json:"architecture"`
	} `json:"data"`
}

// ListModels returns text models from the public listing endpoint, which
// needs no credential. Well-known models sort first, the rest
// lexicographically.
func (a *OpenRouterAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &TransportError{Status: resp.StatusCode, Body: string(raw)}
	}

	var list openRouterModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	ids := []string{}
	for _, m := range list.Data {
		if !isTextModality(m.Architecture.Modality) {
			continue
		}
		ids = append(ids, m.ID)
	}
	sortOpenRouterModelIDs(ids)

	models := make([]ModelInfo, 0, len(ids))
	for _, id := range ids {
		models = append(models, ModelInfo{ID: id, Tier: classifyModelTier(id)})
	}
	return models, nil
}

func isTextModality(modality string) bool {
	lower := strings.ToLower(modality)
	excluded := []string{"image", "audio", "embedding", "vision"}
	for _, needle := range excluded {
		if strings.Contains(lower, needle) {
			return false
		}
	}
	return true
}

func sortOpenRouterModelIDs(ids []string) {
	rank := func(id string) int {
		for i, popular := range openRouterPopular {
			if id == popular {
				return i
			}
		}
		return len(openRouterPopular)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := rank(ids[i]), rank(ids[j])
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
}

// classifyModelTier guesses a pricing tier from the model id. Best-effort
// presentation only; new model names will fall through to "pro".
func classifyModelTier(id string) string {
	lower := strings.ToLower(id)
	if strings.Contains(lower, ":free") {
		return TierFree
	}
	premium := []string{"gpt-4", "opus", "o1", "o3", "mistral-large"}
	for _, needle := range premium {
		if strings.Contains(lower, needle) {
			return TierPremium
		}
	}
	return TierPro
}
