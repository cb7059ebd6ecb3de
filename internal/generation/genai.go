package generation

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGenAIModel = "gemini-2.5-flash"

// GenAIBackend generates text with Google's Gemini API.
type GenAIBackend struct {
	client *genai.Client
	model  string
}

func NewGenAIBackend(ctx context.Context, apiKey, model string) (*GenAIBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("genai backend requires an API key")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIBackend{client: client, model: model}, nil
}

func (b *GenAIBackend) Name() string { return "genai" }

func (b *GenAIBackend) Generate(ctx context.Context, messages []Message) (string, error) {
	contents, system := toGenAIContents(messages)
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](defaultTemperature),
		MaxOutputTokens: defaultMaxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("genai generate: %w", ErrEmptyResponse)
	}
	return text, nil
}

// toGenAIContents folds system messages into one system instruction and maps
// the remaining turns onto Gemini's user/model roles.
func toGenAIContents(messages []Message) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}
