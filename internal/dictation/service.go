package dictation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"medscribe/internal/ai"
	"medscribe/internal/auth"
	"medscribe/internal/logger"
	"medscribe/internal/model"
	"medscribe/internal/note"
	"medscribe/internal/repository"
	"medscribe/internal/storage"
	"medscribe/internal/stt"
	"medscribe/internal/worker"
	"medscribe/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type Config struct {
	MaxAudioBytes        int64
	SignedURLTTL         time.Duration
	DownloadTimeout      time.Duration
	TranscriptionTimeout time.Duration
	PersistTimeout       time.Duration
	ExtractionTimeout    time.Duration
}

type Deps struct {
	Repo       repository.DictationRepository
	Blobs      storage.BlobStore
	STT        stt.Provider
	Engine     ai.NoteEngine
	Authorizer auth.Authorizer
	Dispatcher worker.Dispatcher
}

// Service runs ingestion, background transcription and note extraction for dictations.
type Service struct {
	repo       repository.DictationRepository
	blobs      storage.BlobStore
	stt        stt.Provider
	engine     ai.NoteEngine
	authz      auth.Authorizer
	dispatcher worker.Dispatcher
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

func NewService(deps Deps, cfg Config) *Service {
	return &Service{
		repo:       deps.Repo,
		blobs:      deps.Blobs,
		stt:        deps.STT,
		engine:     deps.Engine,
		authz:      deps.Authorizer,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		log:        logger.Get().With().Str("component", "dictation").Logger(),
		now:        time.Now,
	}
}

type IngestRequest struct {
	OwnerID         uuid.UUID
	Filename        string
	Audio           []byte
	DurationSeconds *float64
	PatientRef      *string
}

type IngestResult struct {
	ID     uuid.UUID             `json:"id"`
	Status model.DictationStatus `json:"status"`
}

// Ingest stores the audio, creates the record and dispatches transcription.
// Once the record exists every failure is recorded on it and the caller still gets the id.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if len(req.Audio) == 0 {
		return nil, errors.New(errors.KindInput, "missing_audio", "no audio file provided")
	}
	if int64(len(req.Audio)) > s.cfg.MaxAudioBytes {
		return nil, errors.New(errors.KindTooLarge, "audio_too_large",
			fmt.Sprintf("audio exceeds the %d byte limit", s.cfg.MaxAudioBytes))
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	mimeType, ok := model.AudioMimeType(ext)
	if !ok {
		return nil, errors.New(errors.KindInput, "unsupported_format",
			fmt.Sprintf("unsupported audio format %q", ext))
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		return nil, errors.New(errors.KindInput, "invalid_request", "duration_seconds must not be negative")
	}

	id := uuid.New()
	log := s.log.With().Str("dictation_id", id.String()).Logger()
	path := storage.AudioPath(id.String(), ext)

	if err := s.blobs.Put(ctx, path, req.Audio, mimeType); err != nil {
		log.Error().Err(err).Msg("Failed to store audio")
		return nil, errors.Wrap(err, errors.KindStorage, "storage_failed", "failed to store audio")
	}

	format := strings.TrimPrefix(ext, ".")
	size := int64(len(req.Audio))
	d := &model.Dictation{
		ID:              id,
		OwnerID:         req.OwnerID,
		Status:          model.DictationStatusProcessing,
		AudioRef:        path,
		AudioFormat:     &format,
		AudioSizeBytes:  &size,
		MimeType:        mimeType,
		DurationSeconds: req.DurationSeconds,
		PatientRef:      req.PatientRef,
		Vendor:          s.stt.Name(),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		log.Error().Err(err).Msg("Failed to create dictation record")
		return nil, errors.Wrap(err, errors.KindInternal, "record_failed", "failed to create dictation record")
	}

	log.Info().Int64("size", size).Str("mime_type", mimeType).Msg("Dictation ingested")

	audioURL, err := s.blobs.SignedURL(ctx, path, s.cfg.SignedURLTTL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign audio URL")
		return s.ingestFailed(id, model.FailureSignedURL, "failed to sign audio URL: "+err.Error())
	}

	job := model.TranscriptionJob{DictationID: id, AudioURL: audioURL, MimeType: mimeType}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		log.Error().Err(err).Msg("Transcription job rejected")
		return s.ingestFailed(id, model.FailureQueueRejected, "transcription queue rejected job: "+err.Error())
	}

	return &IngestResult{ID: id, Status: model.DictationStatusProcessing}, nil
}

func (s *Service) ingestFailed(id uuid.UUID, code model.FailureCode, msg string) (*IngestResult, error) {
	if err := s.markFailed(id, code, msg, nil); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "record_failed", "failed to record ingestion failure")
	}
	return &IngestResult{ID: id, Status: model.DictationStatusFailed}, nil
}

type sttOutcome struct {
	res      *stt.Result
	err      error
	panicked any
}

// Transcribe is the worker body for one job. Every return path leaves the
// dictation done or failed; the returned error only reports a failed write.
func (s *Service) Transcribe(ctx context.Context, job model.TranscriptionJob) (err error) {
	start := s.now()
	log := s.log.With().Str("dictation_id", job.DictationID.String()).Logger()

	elapsed := func() *int {
		ms := int(s.now().Sub(start).Milliseconds())
		return &ms
	}
	fail := func(code model.FailureCode, msg string) error {
		log.Warn().Str("error_code", string(code)).Str("error", msg).Msg("Transcription failed")
		return s.markFailed(job.DictationID, code, msg, elapsed())
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Transcription worker panicked")
			err = fail(model.FailureInternal, fmt.Sprintf("internal error: %v", r))
		}
	}()

	dlCtx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	audio, err := s.blobs.Fetch(dlCtx, job.AudioURL)
	cancel()
	if err != nil {
		return fail(model.FailureDownload, "download failed: "+err.Error())
	}

	sttCtx, cancel := context.WithTimeout(ctx, s.cfg.TranscriptionTimeout)
	defer cancel()

	done := make(chan sttOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- sttOutcome{panicked: r}
			}
		}()
		res, err := s.stt.Transcribe(sttCtx, audio, job.MimeType)
		done <- sttOutcome{res: res, err: err}
	}()

	var out sttOutcome
	select {
	case out = <-done:
	case <-sttCtx.Done():
		out = sttOutcome{err: sttCtx.Err()}
	}

	switch {
	case out.panicked != nil:
		return fail(model.FailureInternal, fmt.Sprintf("internal error: %v", out.panicked))
	case out.err != nil && (errors.Is(out.err, context.DeadlineExceeded) || errors.Is(sttCtx.Err(), context.DeadlineExceeded)):
		return fail(model.FailureTimeout, fmt.Sprintf("transcription timed out after %s", s.cfg.TranscriptionTimeout))
	case out.err != nil:
		return fail(model.FailureEngine, "transcription failed: "+out.err.Error())
	}

	text := ""
	if out.res != nil {
		text = strings.TrimSpace(out.res.Transcript)
	}
	if text == "" {
		return fail(model.FailureNoSpeech, "no speech detected in audio")
	}

	ms := elapsed()
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancelPersist()

	err = s.repo.MarkDone(persistCtx, job.DictationID, model.TranscriptResult{
		Raw:              out.res.Raw,
		Text:             text,
		Confidence:       out.res.Confidence,
		ProcessingTimeMs: *ms,
	})
	if errors.Is(err, errors.ErrNotProcessing) {
		log.Warn().Msg("Dictation already terminal, transcript discarded")
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to store transcript")
		if failErr := s.markFailed(job.DictationID, model.FailureInternal, "internal error: failed to store transcript: "+err.Error(), ms); failErr != nil {
			return fmt.Errorf("failed to store transcript: %w (%v)", err, failErr)
		}
		return fmt.Errorf("failed to store transcript: %w", err)
	}

	log.Info().Str("status", string(model.DictationStatusDone)).Int("processing_time_ms", *ms).Msg("Transcription finished")
	return nil
}

// markFailed writes under its own context so an expired job context cannot block it
func (s *Service) markFailed(id uuid.UUID, code model.FailureCode, msg string, ms *int) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()

	err := s.repo.MarkFailed(ctx, id, model.Failure{Code: code, Message: msg, ProcessingTimeMs: ms})
	if errors.Is(err, errors.ErrNotProcessing) {
		s.log.Warn().Str("dictation_id", id.String()).Msg("Dictation already terminal, failure discarded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark dictation failed: %w", err)
	}
	return nil
}

// Get returns the current record, read straight from the repository
func (s *Service) Get(ctx context.Context, callerID, id uuid.UUID) (*model.Dictation, error) {
	return s.authorized(ctx, callerID, id)
}

// List returns the caller's dictations newest first
func (s *Service) List(ctx context.Context, callerID uuid.UUID, limit, offset int) ([]model.Dictation, error) {
	if callerID == uuid.Nil {
		return nil, errors.Wrap(errors.ErrUnauthenticated, errors.KindUnauthenticated, "unauthenticated", "caller identity is required")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.repo.ListByOwner(ctx, callerID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "internal_error", "failed to list dictations")
	}
	return items, nil
}

// Extract converts a done dictation's transcript into a validated structured note.
// At most one extraction runs per dictation and at most one note is ever stored.
func (s *Service) Extract(ctx context.Context, callerID, id uuid.UUID) (*model.StructuredNote, error) {
	d, err := s.authorized(ctx, callerID, id)
	if err != nil {
		return nil, err
	}

	if d.Status != model.DictationStatusDone {
		return nil, wrongState(d.Status)
	}
	transcript := d.Transcript()
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.New(errors.KindState, "empty_transcript", "dictation has an empty transcript")
	}

	if err := s.repo.ClaimExtraction(ctx, id); err != nil {
		return nil, claimError(err, d.Status)
	}

	log := s.log.With().Str("dictation_id", id.String()).Logger()
	stored := false
	defer func() {
		if stored {
			return
		}
		releaseCtx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
		defer cancel()
		if err := s.repo.ReleaseExtraction(releaseCtx, id); err != nil {
			log.Error().Err(err).Msg("Failed to release extraction claim")
		}
	}()

	systemPrompt, userPrompt := ai.BuildPrompt(transcript, ai.DetectNoteType(transcript))

	engineCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
	defer cancel()

	raw, err := s.engine.Complete(engineCtx, systemPrompt, userPrompt)
	if err != nil {
		log.Error().Err(err).Msg("Extraction engine failed")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(engineCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(err, errors.KindTimeout, "engine_timeout",
				fmt.Sprintf("extraction engine timed out after %s", s.cfg.ExtractionTimeout))
		}
		return nil, errors.Wrap(err, errors.KindUpstream, "engine_failed", "extraction engine failed")
	}

	result, err := note.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Extraction output rejected")
		var ve errors.ValidationError
		if errors.As(err, &ve) {
			return nil, errors.Wrap(err, errors.KindContent, "schema_invalid", ve.Error())
		}
		return nil, errors.Wrap(err, errors.KindContent, "invalid_json", err.Error())
	}

	n := &model.StructuredNote{
		ID:          uuid.New(),
		DictationID: id,
		Model:       s.engine.Model(),
		Result:      *result,
	}
	if err := s.repo.CreateNote(ctx, n); err != nil {
		if errors.Is(err, errors.ErrAlreadyExtracted) {
			return nil, errors.Wrap(err, errors.KindConflict, "already_extracted", "a structured note already exists for this dictation")
		}
		return nil, errors.Wrap(err, errors.KindInternal, "internal_error", "failed to store structured note")
	}
	stored = true

	log.Info().Str("note_id", n.ID.String()).Str("note_type", result.NoteType).Msg("Structured note created")
	return n, nil
}

// GetNote returns the stored note of a dictation
func (s *Service) GetNote(ctx context.Context, callerID, id uuid.UUID) (*model.StructuredNote, error) {
	if _, err := s.authorized(ctx, callerID, id); err != nil {
		return nil, err
	}

	n, err := s.repo.GetNoteByDictation(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Wrap(err, errors.KindNotFound, "note_not_found", "no structured note for this dictation")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "internal_error", "failed to load structured note")
	}
	return n, nil
}

func (s *Service) authorized(ctx context.Context, callerID, id uuid.UUID) (*model.Dictation, error) {
	if callerID == uuid.Nil {
		return nil, errors.Wrap(errors.ErrUnauthenticated, errors.KindUnauthenticated, "unauthenticated", "caller identity is required")
	}

	d, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Wrap(err, errors.KindNotFound, "not_found", "dictation not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "internal_error", "failed to load dictation")
	}

	if err := s.authz.Authorize(ctx, callerID, d); err != nil {
		if errors.Is(err, errors.ErrUnauthenticated) {
			return nil, errors.Wrap(err, errors.KindUnauthenticated, "unauthenticated", "caller identity is required")
		}
		return nil, errors.Wrap(err, errors.KindForbidden, "forbidden", "access to this dictation is denied")
	}
	return d, nil
}

func wrongState(status model.DictationStatus) error {
	return errors.Wrap(errors.ErrWrongState, errors.KindState, "wrong_state",
		fmt.Sprintf("dictation is in state %s; extraction requires done", status))
}

func claimError(err error, status model.DictationStatus) error {
	switch {
	case errors.Is(err, errors.ErrExtractionClaimed):
		return errors.Wrap(err, errors.KindConflict, "extraction_in_progress", "an extraction is already in progress for this dictation")
	case errors.Is(err, errors.ErrAlreadyExtracted):
		return errors.Wrap(err, errors.KindConflict, "already_extracted", "a structured note already exists for this dictation")
	case errors.Is(err, errors.ErrWrongState):
		return wrongState(status)
	case errors.Is(err, errors.ErrNotFound):
		return errors.Wrap(err, errors.KindNotFound, "not_found", "dictation not found")
	default:
		return errors.Wrap(err, errors.KindInternal, "internal_error", "failed to claim extraction")
	}
}
