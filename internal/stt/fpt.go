package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"medscribe/internal/logger"

	"github.com/rs/zerolog"
)

// FPTProvider implements STT using FPT.AI Speech-to-Text API
type FPTProvider struct {
	apiKey     string
	url        string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewFPTProvider creates a new FPT STT provider
func NewFPTProvider(apiKey, url string) *FPTProvider {
	return &FPTProvider{
		apiKey:     apiKey,
		url:        url,
		httpClient: &http.Client{},
		log:        logger.Get().With().Str("provider", "fpt").Logger(),
	}
}

func (p *FPTProvider) Name() string {
	return "fpt"
}

// fptResponse represents FPT.AI STT API response
type fptResponse struct {
	Hypotheses []struct {
		Utterance  string  `json:"utterance"`
		Confidence float64 `json:"confidence"`
	} `json:"hypotheses"`
	ErrorCode int    `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Transcribe posts the raw audio to FPT.AI and returns the best hypothesis
func (p *FPTProvider) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Result, error) {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("api-key", p.apiKey)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to FPT.AI: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.log.Error().Int("status", resp.StatusCode).Str("body", preview(body)).Msg("FPT.AI API error")
		return nil, fmt.Errorf("FPT.AI API returned status %d: %s", resp.StatusCode, preview(body))
	}

	var sttResp fptResponse
	if err := json.Unmarshal(body, &sttResp); err != nil {
		return nil, fmt.Errorf("failed to parse FPT.AI response: %w", err)
	}

	if sttResp.ErrorCode != 0 {
		return nil, fmt.Errorf("FPT.AI API error %d: %s", sttResp.ErrorCode, sttResp.Message)
	}

	result := &Result{Raw: json.RawMessage(body)}
	if len(sttResp.Hypotheses) == 0 {
		p.log.Warn().Msg("No hypotheses returned")
		return result, nil
	}

	hyp := sttResp.Hypotheses[0]
	result.Transcript = strings.TrimSpace(hyp.Utterance)
	confidence := hyp.Confidence
	result.Confidence = &confidence

	p.log.Debug().
		Float64("confidence", confidence).
		Int("length", len(result.Transcript)).
		Dur("duration", time.Since(startTime)).
		Msg("Transcription finished")

	return result, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
