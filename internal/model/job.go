package model

import "github.com/google/uuid"

// TranscriptionJob is the unit of work handed from ingestion to the worker pool.
type TranscriptionJob struct {
	DictationID uuid.UUID `json:"dictation_id"`
	AudioURL    string    `json:"audio_url"`
	MimeType    string    `json:"mime_type"`
}
