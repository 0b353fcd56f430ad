package stt

import (
	"context"
	"encoding/json"
)

//go:generate mockgen -destination=../mocks/mock_stt.go -package=mocks medscribe/internal/stt Provider

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Transcribe transcribes audio bytes of the given MIME type.
	// A recording without speech yields a Result with an empty Transcript, not an error.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*Result, error)

	// Name returns the name of the provider (e.g., "fpt", "google", "openai")
	Name() string
}

// Result represents the result of a speech-to-text transcription
type Result struct {
	Transcript string          // The transcribed text, trimmed
	Confidence *float64        // Confidence score (0.0-1.0) when the vendor reports one
	Raw        json.RawMessage // Vendor-shaped response payload
}
