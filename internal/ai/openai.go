package ai

import (
	"context"
	"fmt"
	"math"

	"medscribe/internal/logger"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

//go:generate mockgen -destination=../mocks/mock_ai.go -package=mocks medscribe/internal/ai NoteEngine

// NoteEngine turns prompts into a raw JSON completion.
// Implementations run with temperature 0 and JSON output mode.
type NoteEngine interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// OpenAIEngine implements NoteEngine with the chat completions API
type OpenAIEngine struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIEngine creates a chat completion engine; baseURL may be empty
func NewOpenAIEngine(apiKey, baseURL, model string) *OpenAIEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    logger.Get().With().Str("component", "openai_engine").Logger(),
	}
}

func (e *OpenAIEngine) Model() string {
	return e.model
}

// Complete returns the content of the first choice verbatim
func (e *OpenAIEngine) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		// omitempty drops a literal 0
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	e.log.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Int("choices", len(resp.Choices)).
		Msg("OpenAI completion received")

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
