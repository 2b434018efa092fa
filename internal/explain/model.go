package explain

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.5-flash"

// Model turns a prompt into text. It enables mocking the LLM in tests.
type Model interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	Name() string
}

// GeminiModel calls Gemini through the genai SDK.
type GeminiModel struct {
	client *genai.Client
	name   string
}

// NewGeminiModel creates a genai client. Credentials come from the
// environment (GOOGLE_API_KEY or Vertex AI settings).
func NewGeminiModel(ctx context.Context, name string) (*GeminiModel, error) {
	if name == "" {
		name = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiModel: create genai client: %w", err)
	}
	return &GeminiModel{client: client, name: name}, nil
}

// Name implements Model.
func (m *GeminiModel) Name() string { return m.name }

// GenerateText implements Model.
func (m *GeminiModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.name, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenerateText: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GenerateText: empty response from model")
	}
	return text, nil
}

var _ Model = (*GeminiModel)(nil)
