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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiAdapter talks to the Google Gemini API.
type GeminiAdapter struct {
	creds   *CredentialCache
	baseURL string
	client  *http.Client
	logger  *utils.Logger
}

// NewGeminiAdapter creates the Gemini adapter.
func NewGeminiAdapter(creds *CredentialCache, baseURL string, logger *utils.Logger) *GeminiAdapter {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &GeminiAdapter{
		creds:   creds,
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  logger,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// Provider returns the provider identifier.
func (a *GeminiAdapter) Provider() Provider { return ProviderGoogleAI }

// HasCredential reports whether an API key is configured.
func (a *GeminiAdapter) HasCredential() bool { return a.creds.Has(ProviderGoogleAI) }

func (a *GeminiAdapter) key() (string, error) {
	key := a.creds.Get(ProviderGoogleAI)
	if key == "" {
		return "", &ConfigError{Provider: ProviderGoogleAI}
	}
	return key, nil
}

// prepareContents converts wire messages to Gemini contents. The system
// instruction is carried out of band, assistant turns become role "model",
// and the platform rule that the final content must be user-authored is
// enforced: trailing model turns are trimmed back to the last user turn, and
// when only the character's greeting exists a minimal "Hello" user turn is
// synthesized. The result is never empty and never ends on role "model".
func prepareContents(msgs []Message) (system string, contents []geminiContent) {
	system, rest := chatMessages(msgs)

	for _, m := range rest {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	trimmed := contents
	for len(trimmed) > 0 && trimmed[len(trimmed)-1].Role == "model" {
		trimmed = trimmed[:len(trimmed)-1]
	}

	if len(trimmed) == 0 {
		// Only model-authored content (or nothing): keep the greeting for
		// context and end on a placeholder user turn.
		contents = append(contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: "Hello"}},
		})
		return system, contents
	}

	return system, trimmed
}

func (a *GeminiAdapter) buildRequest(req Request) geminiRequest {
	system, contents := prepareContents(req.Messages)

	gr := geminiRequest{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if system != "" {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return gr
}

// Complete issues one blocking generateContent call.
func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (string, error) {
	key, err := a.key()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, req.Model, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &TransportError{Status: resp.StatusCode, Body: string(raw)}
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", &ProtocolError{Reason: "response contained no candidates"}
	}
	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}

// StreamComplete issues a streaming generateContent call using SSE framing.
// Malformed events are skipped rather than aborting the stream.
func (a *GeminiAdapter) StreamComplete(ctx context.Context, req Request, onChunk ChunkFunc) (string, error) {
	key, err := a.key()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", a.baseURL, req.Model, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
		if data == "" {
			continue
		}

		var geminiResp geminiResponse
		if err := json.Unmarshal([]byte(data), &geminiResp); err != nil {
			a.logger.Warn("skipping malformed gemini stream event: %v", err)
			continue
		}
		if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
			continue
		}
		chunk := geminiResp.Candidates[0].Content.Parts[0].Text
		if chunk == "" {
			continue
		}
		text.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
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
func (a *GeminiAdapter) ValidateConnection(ctx context.Context) bool {
	_, err := a.ListModels(ctx)
	return err == nil
}

type geminiModelList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns chat-capable Gemini model ids, stable releases first,
// then lexicographically within each group.
func (a *GeminiAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	key, err := a.key()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models?key=%s&pageSize=200", a.baseURL, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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

	var list geminiModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	ids := []string{}
	for _, m := range list.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		if !isGeminiChatModelID(id) {
			continue
		}
		ids = append(ids, id)
	}
	sortGeminiModelIDs(ids)

	models := make([]ModelInfo, 0, len(ids))
	for _, id := range ids {
		models = append(models, ModelInfo{ID: id})
	}
	return models, nil
}

func isGeminiChatModelID(id string) bool {
	lower := strings.ToLower(id)
	excluded := []string{"embedding", "embed", "tts", "image", "audio", "gemma", "aqa"}
	for _, needle := range excluded {
		if strings.Contains(lower, needle) {
			return false
		}
	}
	return true
}

func isStableGeminiModelID(id string) bool {
	lower := strings.ToLower(id)
	return !strings.Contains(lower, "exp") && !strings.Contains(lower, "preview")
}

func sortGeminiModelIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		si, sj := isStableGeminiModelID(ids[i]), isStableGeminiModelID(ids[j])
		if si != sj {
			return si
		}
		return ids[i] < ids[j]
	})
}
