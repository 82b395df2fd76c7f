package translator

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/valpere/fragtran/internal/postprocess"
)

const (
	lmStudioBaseURL      = "http://localhost:1234/v1"
	lmStudioDefaultModel = "local-model"
)

// LMStudio talks to LM Studio's OpenAI-compatible local server.
type LMStudio struct {
	client *openai.Client
}

// NewLMStudio returns an LM Studio backend. baseURL defaults to the local
// server; LM Studio ignores the API key but the client requires one.
func NewLMStudio(baseURL string) *LMStudio {
	if baseURL == "" {
		baseURL = lmStudioBaseURL
	}
	cfg := openai.DefaultConfig("lm-studio")
	cfg.BaseURL = baseURL
	return &LMStudio{client: openai.NewClientWithConfig(cfg)}
}

func (b *LMStudio) Name() string { return "lmstudio" }

func (b *LMStudio) Translate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = lmStudioDefaultModel
	}
	system, user := req.Prompts.RenderChat(req.Instruction, req.Context, req.Text)

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: float32(req.Temperature),
		Stop:        []string{"\n\n"},
	})
	if err != nil {
		return "", fmt.Errorf("lmstudio chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResult
	}

	text := postprocess.Clean(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}
