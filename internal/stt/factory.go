package stt

import (
	"fmt"

	"medscribe/internal/config"
	"medscribe/internal/logger"
)

// NewProvider creates the STT provider selected by stt.provider
func NewProvider(cfg config.STTConfig, openAI config.OpenAIConfig) (Provider, error) {
	log := logger.Get()

	switch cfg.Provider {
	case "fpt":
		log.Info().Str("url", cfg.FPT.URL).Msg("Creating FPT STT provider")
		return NewFPTProvider(cfg.FPT.APIKey, cfg.FPT.URL), nil
	case "google":
		log.Info().Str("project_id", cfg.Google.ProjectID).Msg("Creating Google STT provider")
		return NewGoogleProvider(cfg.Google.ProjectID, cfg.Google.KeyFile, cfg.Google.LanguageCode)
	case "openai":
		log.Info().Str("model", cfg.Whisper.Model).Msg("Creating OpenAI Whisper STT provider")
		return NewOpenAIProvider(openAI.APIKey, openAI.BaseURL, cfg.Whisper.Model, cfg.Whisper.Language), nil
	default:
		return nil, fmt.Errorf("unsupported STT provider: %s. Supported: fpt, google, openai", cfg.Provider)
	}
}
