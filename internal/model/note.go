package model

import (
	"time"

	"github.com/google/uuid"
)

// NoteResult is the fixed shape of a structured clinical note.
type NoteResult struct {
	NoteType   string   `json:"noteType"`
	Subjective string   `json:"subjective"`
	Objective  string   `json:"objective"`
	Assessment string   `json:"assessment"`
	Plan       string   `json:"plan"`
	ICD10Codes []string `json:"icd10Codes"`
	RedFlags   []string `json:"redFlags"`
	FollowUp   string   `json:"followUp"`
}

// StructuredNote is the schema-validated note derived from a dictation transcript.
type StructuredNote struct {
	ID          uuid.UUID  `json:"id"`
	DictationID uuid.UUID  `json:"dictationId"`
	Model       string     `json:"model"`
	Result      NoteResult `json:"result"`
	CreatedAt   time.Time  `json:"createdAt"`
}
