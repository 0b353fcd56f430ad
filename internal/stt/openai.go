package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medscribe/internal/logger"
	"medscribe/internal/model"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements STT using the OpenAI audio transcription endpoint
type OpenAIProvider struct {
	client   *openai.Client
	model    string
	language string
	log      zerolog.Logger
}

// NewOpenAIProvider creates a Whisper-backed provider; baseURL may be empty
func NewOpenAIProvider(apiKey, baseURL, model, language string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
		log:      logger.Get().With().Str("provider", "openai").Logger(),
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Result, error) {
	ext := model.AudioExtension(mimeType)
	if ext == "" {
		ext = ".wav"
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: "audio" + ext,
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: p.language,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI transcription error: %w", err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcription response: %w", err)
	}

	p.log.Debug().
		Str("language", resp.Language).
		Float64("audio_duration", resp.Duration).
		Int("segments", len(resp.Segments)).
		Msg("Transcription finished")

	return &Result{
		Transcript: strings.TrimSpace(resp.Text),
		Raw:        raw,
	}, nil
}
