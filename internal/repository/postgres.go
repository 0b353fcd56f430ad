package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"medscribe/internal/model"
	"medscribe/pkg/errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const dictationColumns = `
	id, owner_id, status, audio_ref, audio_format, audio_size_bytes, mime_type,
	duration_seconds, patient_ref, vendor, transcript_raw, transcript_text,
	confidence, error_code, error_message, processing_time_ms, created_at, updated_at`

type postgresRepository struct {
	db       *sql.DB
	claimTTL time.Duration
	now      func() time.Time
}

// NewPostgresRepository creates a new PostgreSQL repository.
// An extraction claim older than claimTTL is considered abandoned and can be taken over.
func NewPostgresRepository(db *sql.DB, claimTTL time.Duration) DictationRepository {
	return &postgresRepository{
		db:       db,
		claimTTL: claimTTL,
		now:      time.Now,
	}
}

// Create creates a new dictation record
func (r *postgresRepository) Create(ctx context.Context, d *model.Dictation) error {
	if d.Status != model.DictationStatusProcessing {
		return fmt.Errorf("dictation %s must be created in processing state", d.ID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.now().UTC()
	}
	d.UpdatedAt = d.CreatedAt

	query := `
		INSERT INTO dictations (
			id, owner_id, status, audio_ref, audio_format, audio_size_bytes, mime_type,
			duration_seconds, patient_ref, vendor, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.OwnerID,
		d.Status,
		d.AudioRef,
		d.AudioFormat,
		d.AudioSizeBytes,
		d.MimeType,
		d.DurationSeconds,
		d.PatientRef,
		d.Vendor,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dictation: %w", err)
	}

	return nil
}

// MarkDone stores the transcript of a dictation still in processing
func (r *postgresRepository) MarkDone(ctx context.Context, id uuid.UUID, res model.TranscriptResult) error {
	var raw []byte
	if len(res.Raw) > 0 {
		raw = res.Raw
	}

	query := `
		UPDATE dictations
		SET
			status = 'done',
			transcript_raw = $2,
			transcript_text = $3,
			confidence = $4,
			processing_time_ms = $5,
			updated_at = $6
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, id, raw, res.Text, res.Confidence, res.ProcessingTimeMs, r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark dictation done: %w", err)
	}
	return r.checkTransition(ctx, id, result)
}

// MarkFailed stores the failure of a dictation still in processing
func (r *postgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, f model.Failure) error {
	query := `
		UPDATE dictations
		SET
			status = 'failed',
			error_code = $2,
			error_message = $3,
			processing_time_ms = $4,
			updated_at = $5
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, id, f.Code, f.Message, f.ProcessingTimeMs, r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark dictation failed: %w", err)
	}
	return r.checkTransition(ctx, id, result)
}

// checkTransition tells a missing row apart from a row that already left processing
func (r *postgresRepository) checkTransition(ctx context.Context, id uuid.UUID, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM dictations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check dictation: %w", err)
	}
	if !exists {
		return errors.ErrNotFound
	}
	return errors.ErrNotProcessing
}

// GetByID retrieves a dictation by ID
func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Dictation, error) {
	query := `SELECT ` + dictationColumns + ` FROM dictations WHERE id = $1`

	d, err := scanDictation(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dictation: %w", err)
	}
	return d, nil
}

// ListByOwner retrieves dictations for an owner with pagination
func (r *postgresRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Dictation, error) {
	query := `SELECT ` + dictationColumns + `
		FROM dictations
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query dictations: %w", err)
	}
	defer rows.Close()

	dictations := []model.Dictation{}
	for rows.Next() {
		d, err := scanDictation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dictation: %w", err)
		}
		dictations = append(dictations, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return dictations, nil
}

// ClaimExtraction sets extraction_claimed_at in a single conditional update
func (r *postgresRepository) ClaimExtraction(ctx context.Context, id uuid.UUID) error {
	now := r.now().UTC()
	query := `
		UPDATE dictations d
		SET extraction_claimed_at = $2
		WHERE d.id = $1
			AND d.status = 'done'
			AND (d.extraction_claimed_at IS NULL OR d.extraction_claimed_at < $3)
			AND NOT EXISTS (SELECT 1 FROM structured_notes n WHERE n.dictation_id = d.id)
	`

	result, err := r.db.ExecContext(ctx, query, id, now, now.Add(-r.claimTTL))
	if err != nil {
		return fmt.Errorf("failed to claim extraction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var (
		status  model.DictationStatus
		claimed bool
		hasNote bool
	)
	err = r.db.QueryRowContext(ctx, `
		SELECT d.status,
			d.extraction_claimed_at IS NOT NULL,
			EXISTS (SELECT 1 FROM structured_notes n WHERE n.dictation_id = d.id)
		FROM dictations d
		WHERE d.id = $1`, id).Scan(&status, &claimed, &hasNote)
	if err == sql.ErrNoRows {
		return errors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect extraction claim: %w", err)
	}

	switch {
	case hasNote:
		return errors.ErrAlreadyExtracted
	case status != model.DictationStatusDone:
		return errors.ErrWrongState
	case claimed:
		return errors.ErrExtractionClaimed
	default:
		return fmt.Errorf("extraction claim for %s was not granted", id)
	}
}

// ReleaseExtraction clears the claim unless a note was already stored
func (r *postgresRepository) ReleaseExtraction(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE dictations d
		SET extraction_claimed_at = NULL
		WHERE d.id = $1
			AND NOT EXISTS (SELECT 1 FROM structured_notes n WHERE n.dictation_id = d.id)
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to release extraction claim: %w", err)
	}
	return nil
}

// CreateNote inserts a structured note; the unique dictation_id makes a second insert fail
func (r *postgresRepository) CreateNote(ctx context.Context, note *model.StructuredNote) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = r.now().UTC()
	}

	resultJSON, err := json.Marshal(note.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal note result: %w", err)
	}

	query := `
		INSERT INTO structured_notes (id, dictation_id, model, result, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query, note.ID, note.DictationID, note.Model, resultJSON, note.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return errors.ErrAlreadyExtracted
		}
		return fmt.Errorf("failed to create structured note: %w", err)
	}

	return nil
}

// GetNoteByDictation retrieves the structured note of a dictation
func (r *postgresRepository) GetNoteByDictation(ctx context.Context, dictationID uuid.UUID) (*model.StructuredNote, error) {
	query := `
		SELECT id, dictation_id, model, result, created_at
		FROM structured_notes
		WHERE dictation_id = $1
	`

	var note model.StructuredNote
	var resultJSON []byte

	err := r.db.QueryRowContext(ctx, query, dictationID).Scan(
		&note.ID,
		&note.DictationID,
		&note.Model,
		&resultJSON,
		&note.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get structured note: %w", err)
	}

	if err := json.Unmarshal(resultJSON, &note.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note result: %w", err)
	}

	return &note, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDictation(row rowScanner) (*model.Dictation, error) {
	var d model.Dictation
	var raw []byte
	var errorCode sql.NullString

	err := row.Scan(
		&d.ID,
		&d.OwnerID,
		&d.Status,
		&d.AudioRef,
		&d.AudioFormat,
		&d.AudioSizeBytes,
		&d.MimeType,
		&d.DurationSeconds,
		&d.PatientRef,
		&d.Vendor,
		&raw,
		&d.TranscriptText,
		&d.Confidence,
		&errorCode,
		&d.Error,
		&d.ProcessingTimeMs,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(raw) > 0 {
		d.TranscriptRaw = json.RawMessage(raw)
	}
	if errorCode.Valid {
		code := model.FailureCode(errorCode.String)
		d.ErrorCode = &code
	}

	return &d, nil
}
