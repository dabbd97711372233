package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature float64
}

func NewOpenAIClient(apiKey, baseURL, model string, temperature float64) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
	}
}

func (o *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System()),
			openai.UserMessage(p.User()),
		},
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
