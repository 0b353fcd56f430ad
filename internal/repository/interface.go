package repository

import (
	"context"
	"medscribe/internal/model"

	"github.com/google/uuid"
)

// DictationRepository defines the interface for dictation and structured note data access.
// Transitions are conditional: MarkDone and MarkFailed only apply to a dictation
// still in processing and return errors.ErrNotProcessing otherwise.
type DictationRepository interface {
	// Create inserts a new dictation in processing state
	Create(ctx context.Context, d *model.Dictation) error

	// MarkDone moves a processing dictation to done
	MarkDone(ctx context.Context, id uuid.UUID, res model.TranscriptResult) error

	// MarkFailed moves a processing dictation to failed
	MarkFailed(ctx context.Context, id uuid.UUID, f model.Failure) error

	// GetByID retrieves a dictation, errors.ErrNotFound if missing
	GetByID(ctx context.Context, id uuid.UUID) (*model.Dictation, error)

	// ListByOwner retrieves an owner's dictations, newest first
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Dictation, error)

	// ClaimExtraction atomically reserves the right to extract a note for a done dictation.
	// Returns errors.ErrExtractionClaimed if another claim is held and
	// errors.ErrAlreadyExtracted if a note exists.
	ClaimExtraction(ctx context.Context, id uuid.UUID) error

	// ReleaseExtraction drops a claim after a failed extraction
	ReleaseExtraction(ctx context.Context, id uuid.UUID) error

	// CreateNote persists a structured note for a claimed dictation
	CreateNote(ctx context.Context, note *model.StructuredNote) error

	// GetNoteByDictation retrieves the note of a dictation, errors.ErrNotFound if none
	GetNoteByDictation(ctx context.Context, dictationID uuid.UUID) (*model.StructuredNote, error)
}
