package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"medscribe/internal/model"
	"medscribe/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dictationRowColumns = []string{
	"id", "owner_id", "status", "audio_ref", "audio_format", "audio_size_bytes", "mime_type",
	"duration_seconds", "patient_ref", "vendor", "transcript_raw", "transcript_text",
	"confidence", "error_code", "error_message", "processing_time_ms", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*postgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	repo := NewPostgresRepository(db, 5*time.Minute).(*postgresRepository)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	return repo, mock
}

func TestPostgresRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	d := newDictation(uuid.New())

	mock.ExpectExec("INSERT INTO dictations").
		WithArgs(d.ID, d.OwnerID, d.Status, d.AudioRef, sqlmock.AnyArg(), sqlmock.AnyArg(), d.MimeType,
			sqlmock.AnyArg(), sqlmock.AnyArg(), d.Vendor, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), d))
	assert.Equal(t, d.CreatedAt, d.UpdatedAt)
}

func TestPostgresRepository_MarkDone(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE dictations\s+SET\s+status = 'done'.*WHERE id = \$1 AND status = 'processing'`).
		WithArgs(id, []byte(`{"a":1}`), "text", nil, 120, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkDone(context.Background(), id, model.TranscriptResult{Raw: []byte(`{"a":1}`), Text: "text", ProcessingTimeMs: 120})
	assert.NoError(t, err)
}

func TestPostgresRepository_MarkFailedOnTerminalRecord(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE dictations\s+SET\s+status = 'failed'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.MarkFailed(context.Background(), id, model.Failure{Code: model.FailureEngine, Message: "boom"})
	assert.ErrorIs(t, err, errors.ErrNotProcessing)
}

func TestPostgresRepository_MarkFailedOnMissingRecord(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE dictations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.MarkFailed(context.Background(), id, model.Failure{Code: model.FailureEngine, Message: "boom"})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPostgresRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, owner := uuid.New(), uuid.New()
	created := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM dictations WHERE id = \$1`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows(dictationRowColumns).AddRow(
			id.String(), owner.String(), "failed", "dictations/x/audio.wav", "wav", int64(2048), "audio/wav",
			nil, nil, "fpt", nil, nil,
			nil, "no_speech", "no speech detected in audio", 30, created, created,
		))

	d, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, d.ID)
	assert.Equal(t, owner, d.OwnerID)
	assert.Equal(t, model.DictationStatusFailed, d.Status)
	assert.Equal(t, "wav", *d.AudioFormat)
	assert.Equal(t, model.FailureNoSpeech, *d.ErrorCode)
	assert.Equal(t, "no speech detected in audio", *d.Error)
	assert.Nil(t, d.TranscriptText)
	assert.NoError(t, d.Validate())
}

func TestPostgresRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM dictations WHERE id`).WillReturnRows(sqlmock.NewRows(dictationRowColumns))

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPostgresRepository_ListByOwner(t *testing.T) {
	repo, mock := newMockRepo(t)
	owner := uuid.New()
	created := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ORDER BY created_at DESC\s+LIMIT \$2 OFFSET \$3`).WithArgs(owner, 20, 0).
		WillReturnRows(sqlmock.NewRows(dictationRowColumns).
			AddRow(uuid.NewString(), owner.String(), "done", "a", nil, nil, "audio/wav",
				12.5, "MRN-1", "fpt", []byte(`{"x":1}`), "Cough.", 0.9, nil, nil, 40, created, created).
			AddRow(uuid.NewString(), owner.String(), "processing", "b", nil, nil, "audio/wav",
				nil, nil, "fpt", nil, nil, nil, nil, nil, nil, created, created))

	items, err := repo.ListByOwner(context.Background(), owner, 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Cough.", items[0].Transcript())
	assert.Equal(t, "MRN-1", *items[0].PatientRef)
	assert.JSONEq(t, `{"x":1}`, string(items[0].TranscriptRaw))
	assert.Equal(t, model.DictationStatusProcessing, items[1].Status)
}

func TestPostgresRepository_ClaimExtraction(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`SET extraction_claimed_at = \$2`).
		WithArgs(id, repo.now().UTC(), repo.now().UTC().Add(-5*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.ClaimExtraction(context.Background(), id))
}

func TestPostgresRepository_ClaimExtractionDiagnosis(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		claimed bool
		hasNote bool
		want    error
	}{
		{"in progress", "done", true, false, errors.ErrExtractionClaimed},
		{"already extracted", "done", true, true, errors.ErrAlreadyExtracted},
		{"still processing", "processing", false, false, errors.ErrWrongState},
		{"failed", "failed", false, false, errors.ErrWrongState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			id := uuid.New()

			mock.ExpectExec(`SET extraction_claimed_at = \$2`).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT d.status`).WithArgs(id).
				WillReturnRows(sqlmock.NewRows([]string{"status", "claimed", "has_note"}).AddRow(tt.status, tt.claimed, tt.hasNote))

			assert.ErrorIs(t, repo.ClaimExtraction(context.Background(), id), tt.want)
		})
	}
}

func TestPostgresRepository_ClaimExtractionMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`SET extraction_claimed_at`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT d.status`).WillReturnError(sql.ErrNoRows)

	assert.ErrorIs(t, repo.ClaimExtraction(context.Background(), uuid.New()), errors.ErrNotFound)
}

func TestPostgresRepository_ReleaseExtraction(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`SET extraction_claimed_at = NULL`).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.ReleaseExtraction(context.Background(), id))
}

func TestPostgresRepository_CreateNoteDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO structured_notes`).WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateNote(context.Background(), &model.StructuredNote{ID: uuid.New(), DictationID: uuid.New()})
	assert.ErrorIs(t, err, errors.ErrAlreadyExtracted)
}

func TestPostgresRepository_GetNoteByDictation(t *testing.T) {
	repo, mock := newMockRepo(t)
	noteID, dictationID := uuid.New(), uuid.New()
	created := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM structured_notes`).WithArgs(dictationID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dictation_id", "model", "result", "created_at"}).
			AddRow(noteID.String(), dictationID.String(), "gpt-4o-mini",
				[]byte(`{"noteType":"progress_note","plan":"P","icd10Codes":["J20.9"],"redFlags":[]}`), created))

	n, err := repo.GetNoteByDictation(context.Background(), dictationID)
	require.NoError(t, err)
	assert.Equal(t, noteID, n.ID)
	assert.Equal(t, "P", n.Result.Plan)
	assert.Equal(t, []string{"J20.9"}, n.Result.ICD10Codes)
}

func TestPostgresRepository_GetNoteByDictationMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM structured_notes`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetNoteByDictation(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
