package repository

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"medscribe/internal/model"
	"medscribe/pkg/errors"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu         sync.Mutex
	dictations map[uuid.UUID]*model.Dictation
	notes      map[uuid.UUID]*model.StructuredNote
	claims     map[uuid.UUID]bool
	now        func() time.Time
}

// NewMemoryRepository creates a process-local repository, used when no database is configured
func NewMemoryRepository() DictationRepository {
	return &memoryRepository{
		dictations: make(map[uuid.UUID]*model.Dictation),
		notes:      make(map[uuid.UUID]*model.StructuredNote),
		claims:     make(map[uuid.UUID]bool),
		now:        time.Now,
	}
}

func (r *memoryRepository) Create(ctx context.Context, d *model.Dictation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.dictations[d.ID]; exists {
		return fmt.Errorf("dictation %s already exists", d.ID)
	}
	if d.Status != model.DictationStatusProcessing {
		return fmt.Errorf("dictation %s must be created in processing state", d.ID)
	}

	now := r.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = d.CreatedAt

	r.dictations[d.ID] = cloneDictation(d)
	return nil
}

func (r *memoryRepository) MarkDone(ctx context.Context, id uuid.UUID, res model.TranscriptResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.dictations[id]
	if !ok {
		return errors.ErrNotFound
	}
	if d.Status != model.DictationStatusProcessing {
		return errors.ErrNotProcessing
	}
	if strings.TrimSpace(res.Text) == "" {
		return fmt.Errorf("dictation %s cannot be done with an empty transcript", id)
	}

	text := res.Text
	ms := res.ProcessingTimeMs
	d.Status = model.DictationStatusDone
	d.TranscriptRaw = bytes.Clone(res.Raw)
	d.TranscriptText = &text
	d.Confidence = res.Confidence
	d.ProcessingTimeMs = &ms
	d.UpdatedAt = r.now()
	return nil
}

func (r *memoryRepository) MarkFailed(ctx context.Context, id uuid.UUID, f model.Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.dictations[id]
	if !ok {
		return errors.ErrNotFound
	}
	if d.Status != model.DictationStatusProcessing {
		return errors.ErrNotProcessing
	}

	code := f.Code
	msg := f.Message
	d.Status = model.DictationStatusFailed
	d.ErrorCode = &code
	d.Error = &msg
	d.ProcessingTimeMs = f.ProcessingTimeMs
	d.UpdatedAt = r.now()
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Dictation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.dictations[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	// Return a copy to avoid race conditions
	return cloneDictation(d), nil
}

func (r *memoryRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Dictation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var owned []model.Dictation
	for _, d := range r.dictations {
		if d.OwnerID == ownerID {
			owned = append(owned, *cloneDictation(d))
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	if offset >= len(owned) {
		return []model.Dictation{}, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (r *memoryRepository) ClaimExtraction(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.dictations[id]
	if !ok {
		return errors.ErrNotFound
	}
	if d.Status != model.DictationStatusDone {
		return errors.ErrWrongState
	}
	if _, exists := r.notes[id]; exists {
		return errors.ErrAlreadyExtracted
	}
	if r.claims[id] {
		return errors.ErrExtractionClaimed
	}
	r.claims[id] = true
	return nil
}

func (r *memoryRepository) ReleaseExtraction(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.notes[id]; !exists {
		delete(r.claims, id)
	}
	return nil
}

func (r *memoryRepository) CreateNote(ctx context.Context, note *model.StructuredNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.claims[note.DictationID] {
		return fmt.Errorf("no extraction claim held for dictation %s", note.DictationID)
	}
	if _, exists := r.notes[note.DictationID]; exists {
		return errors.ErrAlreadyExtracted
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = r.now()
	}

	stored := *note
	stored.Result = cloneResult(note.Result)
	r.notes[note.DictationID] = &stored
	return nil
}

func (r *memoryRepository) GetNoteByDictation(ctx context.Context, dictationID uuid.UUID) (*model.StructuredNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	note, ok := r.notes[dictationID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	noteCopy := *note
	noteCopy.Result = cloneResult(note.Result)
	return &noteCopy, nil
}

func cloneDictation(d *model.Dictation) *model.Dictation {
	c := *d
	c.TranscriptRaw = bytes.Clone(d.TranscriptRaw)
	return &c
}

func cloneResult(r model.NoteResult) model.NoteResult {
	r.ICD10Codes = append([]string{}, r.ICD10Codes...)
	r.RedFlags = append([]string{}, r.RedFlags...)
	return r
}
