package generation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ent0n29/agentforge/internal/reliability"
)

const DefaultOpenAIURL = "https://api.openai.com/v1"

// OpenAIBackend calls any OpenAI-compatible /chat/completions endpoint.
type OpenAIBackend struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	policy  reliability.Policy
}

func NewOpenAIBackend(baseURL, apiKey, model string) *OpenAIBackend {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIBackend{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
		client:  newHTTPClient(),
		policy:  reliability.DefaultPolicy,
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (b *OpenAIBackend) Generate(ctx context.Context, messages []Message) (string, error) {
	headers := map[string]string{}
	if b.apiKey != "" {
		headers["Authorization"] = "Bearer " + b.apiKey
	}
	var out openAIChatResponse
	err := postJSON(ctx, b.client, b.policy, b.baseURL+"/chat/completions", headers, openAIChatRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openai chat: %w", ErrEmptyResponse)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
