package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"medscribe/internal/logger"
	"medscribe/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleEndpoint = "https://speech.googleapis.com"
	googleScope    = "https://www.googleapis.com/auth/cloud-platform"
)

// GoogleProvider implements STT using Google Cloud Speech-to-Text REST API
type GoogleProvider struct {
	projectID    string
	apiKey       string
	languageCode string
	endpoint     string
	httpClient   *http.Client
	log          zerolog.Logger
}

// NewGoogleProvider creates a new Google STT provider
// keyData can be either:
//   - An API key (39 characters, typically starts with "AIzaSy")
//   - A file path to a JSON key file (e.g., "./keys/google-service-account.json")
//   - A JSON string containing the service account credentials
//   - Empty, to use application default credentials (projectID required)
func NewGoogleProvider(projectID, keyData, languageCode string) (*GoogleProvider, error) {
	keyData = strings.TrimSpace(keyData)
	p := &GoogleProvider{
		projectID:    projectID,
		languageCode: languageCode,
		endpoint:     googleEndpoint,
		log:          logger.Get().With().Str("provider", "google").Logger(),
	}

	if isGoogleAPIKey(keyData) {
		p.apiKey = keyData
		p.httpClient = &http.Client{}
		return p, nil
	}

	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_STT_PROJECT_ID is required when using a service account")
	}

	ctx := context.Background()
	var creds *google.Credentials
	var err error

	switch {
	case keyData == "":
		creds, err = google.FindDefaultCredentials(ctx, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
	default:
		jsonData := []byte(keyData)
		if !strings.HasPrefix(keyData, "{") {
			jsonData, err = os.ReadFile(keyData)
			if err != nil {
				return nil, fmt.Errorf("failed to read key file '%s': %w", keyData, err)
			}
		}
		creds, err = google.CredentialsFromJSON(ctx, jsonData, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to create credentials from JSON: %w", err)
		}
	}

	p.httpClient = oauth2.NewClient(ctx, creds.TokenSource)
	return p, nil
}

func isGoogleAPIKey(keyData string) bool {
	return len(keyData) == 39 && strings.HasPrefix(keyData, "AIzaSy")
}

func (p *GoogleProvider) Name() string {
	return "google"
}

type googleRequest struct {
	Config googleConfig `json:"config"`
	Audio  googleAudio  `json:"audio"`
}

type googleConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz,omitempty"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
	Model                      string `json:"model,omitempty"`
	UseEnhanced                bool   `json:"useEnhanced,omitempty"`
}

type googleAudio struct {
	Content string `json:"content"` // Base64 encoded
}

type googleResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
	Error *googleError `json:"error,omitempty"`
}

type googleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Transcribe sends the audio inline to speech:recognize and joins the best alternative of every result
func (p *GoogleProvider) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Result, error) {
	encoding, sampleRate := googleAudioConfig(model.AudioExtension(mimeType))

	reqJSON, err := json.Marshal(googleRequest{
		Config: googleConfig{
			Encoding:                   encoding,
			SampleRateHertz:            sampleRate,
			LanguageCode:               p.languageCode,
			EnableAutomaticPunctuation: true,
			Model:                      "medical_dictation",
			UseEnhanced:                true,
		},
		Audio: googleAudio{Content: base64.StdEncoding.EncodeToString(audio)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.recognizeURL(), bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Google Speech-to-Text: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var sttResp googleResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &sttResp) == nil && sttResp.Error != nil {
			return nil, fmt.Errorf("Google Speech-to-Text API error %d %s: %s", sttResp.Error.Code, sttResp.Error.Status, sttResp.Error.Message)
		}
		return nil, fmt.Errorf("Google Speech-to-Text API returned status %d: %s", resp.StatusCode, preview(body))
	}

	if err := json.Unmarshal(body, &sttResp); err != nil {
		return nil, fmt.Errorf("failed to parse Google Speech-to-Text response: %w", err)
	}
	if sttResp.Error != nil {
		return nil, fmt.Errorf("Google Speech-to-Text API error: %s", sttResp.Error.Message)
	}

	result := &Result{Raw: json.RawMessage(body)}

	var parts []string
	var total float64
	for _, r := range sttResp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			parts = append(parts, t)
			total += alt.Confidence
		}
	}
	if len(parts) == 0 {
		p.log.Warn().Msg("No results returned")
		return result, nil
	}

	result.Transcript = strings.Join(parts, " ")
	confidence := total / float64(len(parts))
	result.Confidence = &confidence
	return result, nil
}

func (p *GoogleProvider) recognizeURL() string {
	if p.apiKey != "" {
		return p.endpoint + "/v1/speech:recognize?key=" + url.QueryEscape(p.apiKey)
	}
	return p.endpoint + "/v1/speech:recognize"
}

// googleAudioConfig determines encoding and sample rate based on file extension
func googleAudioConfig(ext string) (string, int) {
	switch ext {
	case ".wav":
		return "LINEAR16", 16000
	case ".mp3":
		return "MP3", 44100
	case ".ogg":
		return "OGG_OPUS", 48000
	case ".webm":
		return "WEBM_OPUS", 48000
	case ".flac":
		return "FLAC", 0
	default:
		return "ENCODING_UNSPECIFIED", 0
	}
}
