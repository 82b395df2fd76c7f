package translator

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/valpere/fragtran/internal/postprocess"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// ErrMissingCredential means a backend that requires an API key was
// constructed without one.
var ErrMissingCredential = errors.New("missing API key")

// OpenRouter talks to openrouter.ai's OpenAI-compatible API.
type OpenRouter struct {
	client *openai.Client
	apiKey string
	// pause is slept after every successful call; the free tier rate-limits
	// aggressively.
	pause time.Duration
}

func NewOpenRouter(apiKey, baseURL string) *OpenRouter {
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenRouter{
		client: openai.NewClientWithConfig(cfg),
		apiKey: apiKey,
		pause:  3 * time.Second,
	}
}

func (b *OpenRouter) Name() string { return "openrouter" }

func (b *OpenRouter) Translate(ctx context.Context, req Request) (string, error) {
	if b.apiKey == "" {
		return "", fmt.Errorf("openrouter: %w", ErrMissingCredential)
	}
	system, user := req.Prompts.RenderChat(req.Instruction, req.Context, req.Text)

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openrouter chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResult
	}

	text := postprocess.Clean(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResult
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(b.pause):
	}
	return text, nil
}
