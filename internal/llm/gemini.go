package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-2.5-flash-lite"

type GeminiClient struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

func NewGeminiClient(apiKey, modelName string, temperature float32) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	return &GeminiClient{
		client:      client,
		modelName:   modelName,
		temperature: temperature,
	}, nil
}

func (g *GeminiClient) Close() {
	g.client.Close()
}

// Complete builds a model handle per call because the system instruction is
// stage specific and the handle is not safe to mutate concurrently.
func (g *GeminiClient) Complete(ctx context.Context, p Prompt) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(g.temperature)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(4096)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(p.System())},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User()))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyReply
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
