package generation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/agentforge/internal/reliability"
)

const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// OllamaBackend calls a local Ollama server's /api/chat endpoint.
type OllamaBackend struct {
	baseURL string
	model   string
	client  *http.Client
	policy  reliability.Policy
}

func NewOllamaBackend(baseURL, model string) *OllamaBackend {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOllamaHost
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultOllamaModel
	}
	return &OllamaBackend{
		baseURL: baseURL,
		model:   model,
		client:  newHTTPClient(),
		policy:  reliability.DefaultPolicy,
	}
}

func (b *OllamaBackend) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

func (b *OllamaBackend) Generate(ctx context.Context, messages []Message) (string, error) {
	var out ollamaChatResponse
	err := postJSON(ctx, b.client, b.policy, b.baseURL+"/api/chat", nil, ollamaChatRequest{
		Model:    b.model,
		Messages: messages,
		Options:  map[string]any{"temperature": defaultTemperature, "num_predict": defaultMaxTokens},
	}, &out)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", out.Error)
	}
	text := strings.TrimSpace(out.Message.Content)
	if text == "" {
		return "", fmt.Errorf("ollama chat: %w", ErrEmptyResponse)
	}
	return text, nil
}

// Ping reports whether the Ollama server answers within timeout.
func (b *OllamaBackend) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	res, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama ping status %d", res.StatusCode)
	}
	return nil
}
