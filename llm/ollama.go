package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"charchat/utils"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaAdapter talks to a local Ollama server. The credential slot stores
// the server's base URL rather than a secret, so no credential is ever
// required to use this provider.
type OllamaAdapter struct {
	creds  *CredentialCache
	client *http.Client
	logger *utils.Logger
}

// NewOllamaAdapter creates the Ollama adapter.
func NewOllamaAdapter(creds *CredentialCache, logger *utils.Logger) *OllamaAdapter {
	if logger == nil {
		logger = utils.NopLogger()
	}
	// Local models can be slow to answer; cap connection setup but not the
	// overall response, so streaming never gets cut off mid-reply.
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 120 * time.Second,
		},
	}
	return &OllamaAdapter{creds: creds, client: client, logger: logger}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Provider returns the provider identifier.
func (a *OllamaAdapter) Provider() Provider { return ProviderOllama }

// HasCredential always reports true: the local server needs no secret.
func (a *OllamaAdapter) HasCredential() bool { return true }

func (a *OllamaAdapter) baseURL() string {
	if url := a.creds.Get(ProviderOllama); url != "" {
		return strings.TrimRight(url, "/")
	}
	return defaultOllamaBaseURL
}

// Complete issues one blocking chat call.
func (a *OllamaAdapter) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.Model,
		Messages: ensureTranscript(req.Messages),
		Stream:   false,
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL()+"/api/chat", bytes.NewReader(body))
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

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if chatResp.Message.Content == "" {
		return "", &ProtocolError{Reason: "response contained no message content"}
	}
	return chatResp.Message.Content, nil
}

// StreamComplete issues a streaming chat call. The stream is newline-
// delimited JSON; malformed lines are skipped with a warning, and a line
// carrying done:true ends accumulation.
func (a *OllamaAdapter) StreamComplete(ctx context.Context, req Request, onChunk ChunkFunc) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.Model,
		Messages: ensureTranscript(req.Messages),
		Stream:   true,
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL()+"/api/chat", bytes.NewReader(body))
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
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var chatResp ollamaChatResponse
		if err := json.Unmarshal(line, &chatResp); err != nil {
			a.logger.Warn("skipping malformed ollama stream line: %v", err)
			continue
		}

		if chatResp.Message.Content != "" {
			text.WriteString(chatResp.Message.Content)
			if onChunk != nil {
				onChunk(chatResp.Message.Content)
			}
		}
		if chatResp.Done {
			break
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

// ValidateConnection checks plain reachability of the server; no
// authenticated call is needed.
func (a *OllamaAdapter) ValidateConnection(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL(), nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

type ollamaTagList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns whatever models the local server has installed.
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL()+"/api/tags", nil)
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

	var tags ollamaTagList
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tag list: %w", err)
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, ModelInfo{ID: m.Name})
	}
	return models, nil
}
