package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint, including
// Gemini's compatibility layer.
type OpenAI struct {
	client    *openai.Client
	maxTokens int
}

// NewOpenAI creates an OpenAI-compatible Generator.
func NewOpenAI(cfg Config) *OpenAI {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAI{
		client:    openai.NewClientWithConfig(config),
		maxTokens: cfg.MaxTokens,
	}
}

// Generate sends prompt as a single user message.
func (p *OpenAI) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		return "", classify(openAIStatus(err), fmt.Errorf("openai: %s: %w", model, err))
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
