package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DictationStatus is the transcription state of a dictation.
// processing is the only non-terminal state.
type DictationStatus string

const (
	DictationStatusProcessing DictationStatus = "processing"
	DictationStatusDone       DictationStatus = "done"
	DictationStatusFailed     DictationStatus = "failed"
)

// IsTerminal reports whether no further transition can occur.
func (s DictationStatus) IsTerminal() bool {
	return s == DictationStatusDone || s == DictationStatusFailed
}

// FailureCode is the machine-readable reason a dictation failed.
type FailureCode string

const (
	FailureSignedURL     FailureCode = "signed_url_failed"
	FailureQueueRejected FailureCode = "queue_rejected"
	FailureDownload      FailureCode = "download_failed"
	FailureTimeout       FailureCode = "transcription_timeout"
	FailureEngine        FailureCode = "transcription_error"
	FailureNoSpeech      FailureCode = "no_speech"
	FailureInternal      FailureCode = "internal_error"
)

// Dictation represents one uploaded voice recording and its transcription outcome
type Dictation struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          uuid.UUID       `json:"owner_id"`
	Status           DictationStatus `json:"status"`
	AudioRef         string          `json:"audio_ref"`
	AudioFormat      *string         `json:"audio_format,omitempty"`
	AudioSizeBytes   *int64          `json:"audio_size_bytes,omitempty"`
	MimeType         string          `json:"mime_type"`
	DurationSeconds  *float64        `json:"duration_seconds,omitempty"`
	PatientRef       *string         `json:"patient_ref,omitempty"`
	Vendor           string          `json:"vendor"`
	TranscriptRaw    json.RawMessage `json:"transcript_raw,omitempty"`
	TranscriptText   *string         `json:"transcript_text,omitempty"`
	Confidence       *float64        `json:"confidence,omitempty"`
	ErrorCode        *FailureCode    `json:"error_code,omitempty"`
	Error            *string         `json:"error,omitempty"`
	ProcessingTimeMs *int            `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Transcript returns the transcript text or "".
func (d *Dictation) Transcript() string {
	if d.TranscriptText == nil {
		return ""
	}
	return *d.TranscriptText
}

// Validate checks that exactly one of the three legal shapes holds:
// processing; done with a non-empty transcript; failed with a non-empty error.
func (d *Dictation) Validate() error {
	hasText := d.TranscriptText != nil && strings.TrimSpace(*d.TranscriptText) != ""
	hasErr := d.Error != nil && *d.Error != ""

	switch d.Status {
	case DictationStatusProcessing:
		if d.TranscriptText != nil || d.Error != nil {
			return fmt.Errorf("processing dictation %s carries a result", d.ID)
		}
	case DictationStatusDone:
		if !hasText {
			return fmt.Errorf("done dictation %s has an empty transcript", d.ID)
		}
		if d.Error != nil {
			return fmt.Errorf("done dictation %s carries an error", d.ID)
		}
	case DictationStatusFailed:
		if !hasErr {
			return fmt.Errorf("failed dictation %s has no error", d.ID)
		}
		if d.TranscriptText != nil {
			return fmt.Errorf("failed dictation %s carries a transcript", d.ID)
		}
	default:
		return fmt.Errorf("dictation %s has unknown status %q", d.ID, d.Status)
	}
	return nil
}

// TranscriptResult is written on the processing -> done transition.
type TranscriptResult struct {
	Raw              json.RawMessage
	Text             string
	Confidence       *float64
	ProcessingTimeMs int
}

// Failure is written on the processing -> failed transition.
type Failure struct {
	Code             FailureCode
	Message          string
	ProcessingTimeMs *int
}
