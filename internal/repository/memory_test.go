package repository

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"medscribe/internal/model"
	"medscribe/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDictation(owner uuid.UUID) *model.Dictation {
	return &model.Dictation{
		ID:       uuid.New(),
		OwnerID:  owner,
		Status:   model.DictationStatusProcessing,
		AudioRef: "dictations/x/audio.wav",
		MimeType: "audio/wav",
		Vendor:   "fpt",
	}
}

func TestMemoryRepository_CreateRequiresProcessing(t *testing.T) {
	repo := NewMemoryRepository()
	d := newDictation(uuid.New())
	d.Status = model.DictationStatusDone

	assert.Error(t, repo.Create(context.Background(), d))
}

func TestMemoryRepository_RandomTransitionsKeepInvariant(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		repo := NewMemoryRepository()
		d := newDictation(uuid.New())
		require.NoError(t, repo.Create(ctx, d))

		var terminal model.DictationStatus
		for step := 0; step < 6; step++ {
			var err error
			if rng.Intn(2) == 0 {
				err = repo.MarkDone(ctx, d.ID, model.TranscriptResult{Text: "text", ProcessingTimeMs: step})
			} else {
				err = repo.MarkFailed(ctx, d.ID, model.Failure{Code: model.FailureEngine, Message: "boom"})
			}

			got, getErr := repo.GetByID(ctx, d.ID)
			require.NoError(t, getErr)
			require.NoError(t, got.Validate())

			if terminal == "" {
				require.NoError(t, err)
				terminal = got.Status
			} else {
				assert.ErrorIs(t, err, errors.ErrNotProcessing)
				assert.Equal(t, terminal, got.Status, "status moved after reaching a terminal state")
			}
		}
	}
}

func TestMemoryRepository_TransitionsOnMissingRecord(t *testing.T) {
	repo := NewMemoryRepository()

	assert.ErrorIs(t, repo.MarkDone(context.Background(), uuid.New(), model.TranscriptResult{Text: "x"}), errors.ErrNotFound)
	assert.ErrorIs(t, repo.MarkFailed(context.Background(), uuid.New(), model.Failure{Message: "x"}), errors.ErrNotFound)
	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestMemoryRepository_MarkDoneRejectsBlankTranscript(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	d := newDictation(uuid.New())
	require.NoError(t, repo.Create(ctx, d))

	assert.Error(t, repo.MarkDone(ctx, d.ID, model.TranscriptResult{Text: ""}))
	assert.Error(t, repo.MarkDone(ctx, d.ID, model.TranscriptResult{Text: " \n\t"}))

	got, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DictationStatusProcessing, got.Status)
	assert.NoError(t, got.Validate())
}

func TestMemoryRepository_GetByIDReturnsCopy(t *testing.T) {
	repo := NewMemoryRepository()
	d := newDictation(uuid.New())
	require.NoError(t, repo.Create(context.Background(), d))

	got, err := repo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	got.Status = model.DictationStatusDone

	again, err := repo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DictationStatusProcessing, again.Status)
}

func TestMemoryRepository_ListByOwnerNewestFirst(t *testing.T) {
	repo := NewMemoryRepository().(*memoryRepository)
	owner := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		d := newDictation(owner)
		d.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(context.Background(), d))
		ids = append(ids, d.ID)
	}
	require.NoError(t, repo.Create(context.Background(), newDictation(uuid.New())))

	items, err := repo.ListByOwner(context.Background(), owner, 2, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, ids[2], items[0].ID)
	assert.Equal(t, ids[1], items[1].ID)

	items, err = repo.ListByOwner(context.Background(), owner, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryRepository_ExtractionClaim(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	d := newDictation(uuid.New())
	require.NoError(t, repo.Create(ctx, d))

	assert.ErrorIs(t, repo.ClaimExtraction(ctx, uuid.New()), errors.ErrNotFound)
	assert.ErrorIs(t, repo.ClaimExtraction(ctx, d.ID), errors.ErrWrongState)

	require.NoError(t, repo.MarkDone(ctx, d.ID, model.TranscriptResult{Text: "text"}))
	require.NoError(t, repo.ClaimExtraction(ctx, d.ID))
	assert.ErrorIs(t, repo.ClaimExtraction(ctx, d.ID), errors.ErrExtractionClaimed)

	require.NoError(t, repo.ReleaseExtraction(ctx, d.ID))
	require.NoError(t, repo.ClaimExtraction(ctx, d.ID))

	note := &model.StructuredNote{ID: uuid.New(), DictationID: d.ID, Model: "m", Result: model.NoteResult{Plan: "P"}}
	require.NoError(t, repo.CreateNote(ctx, note))

	// Release after a stored note keeps the dictation blocked.
	require.NoError(t, repo.ReleaseExtraction(ctx, d.ID))
	assert.ErrorIs(t, repo.ClaimExtraction(ctx, d.ID), errors.ErrAlreadyExtracted)
	assert.ErrorIs(t, repo.CreateNote(ctx, &model.StructuredNote{ID: uuid.New(), DictationID: d.ID}), errors.ErrAlreadyExtracted)

	stored, err := repo.GetNoteByDictation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, note.ID, stored.ID)
	assert.Equal(t, "P", stored.Result.Plan)
}

func TestMemoryRepository_CreateNoteRequiresClaim(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	d := newDictation(uuid.New())
	require.NoError(t, repo.Create(ctx, d))
	require.NoError(t, repo.MarkDone(ctx, d.ID, model.TranscriptResult{Text: "text"}))

	assert.Error(t, repo.CreateNote(ctx, &model.StructuredNote{ID: uuid.New(), DictationID: d.ID}))
}
