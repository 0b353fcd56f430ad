package api

import (
	stderrors "errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"medscribe/internal/dictation"
	"medscribe/internal/logger"
	"medscribe/internal/model"
	"medscribe/internal/storage"
	"medscribe/internal/utils"
	"medscribe/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	multipartOverhead = 1 << 20
	previewLength     = 100
)

// Handler serves the dictation API
type Handler struct {
	svc           *dictation.Service
	localBlobs    *storage.LocalStore
	maxAudioBytes int64
	log           zerolog.Logger
}

// NewHandler creates the API handler. localBlobs is nil unless audio is kept on local disk.
func NewHandler(svc *dictation.Service, localBlobs *storage.LocalStore, maxAudioBytes int64) *Handler {
	return &Handler{
		svc:           svc,
		localBlobs:    localBlobs,
		maxAudioBytes: maxAudioBytes,
		log:           logger.Get().With().Str("component", "api").Logger(),
	}
}

// NewRouter builds the gin engine with middleware and all routes
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(RecoveryMiddleware(h.log), LoggingMiddleware(h.log), corsMiddleware())
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.healthCheck)

	if h.localBlobs != nil {
		r.GET("/blobs/*path", h.serveBlob)
	}

	v1 := r.Group("/api/v1", requireCaller())
	{
		v1.POST("/dictations", h.uploadDictation)
		v1.GET("/dictations", h.listDictations)
		v1.GET("/dictations/:id", h.getDictation)
		v1.POST("/dictations/:id/process", h.processDictation)
		v1.GET("/dictations/:id/note", h.getNote)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "medscribe",
	})
}

// uploadDictation handles POST /api/v1/dictations
func (h *Handler) uploadDictation(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAudioBytes+multipartOverhead)

	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			utils.Fail(c, errors.New(errors.KindTooLarge, "audio_too_large", "request body exceeds the upload limit"))
			return
		}
		if !stderrors.Is(err, http.ErrNotMultipart) {
			utils.Fail(c, errors.Wrap(err, errors.KindInput, "invalid_request", "failed to parse multipart form"))
			return
		}
	}

	req := dictation.IngestRequest{OwnerID: caller(c)}

	if raw := strings.TrimSpace(c.PostForm("duration_seconds")); raw != "" {
		duration, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			utils.Fail(c, errors.Wrap(err, errors.KindInput, "invalid_request", "duration_seconds must be a number"))
			return
		}
		req.DurationSeconds = &duration
	}
	if ref := strings.TrimSpace(c.PostForm("patient_ref")); ref != "" {
		req.PatientRef = &ref
	}

	if file := formAudio(c); file != nil {
		if file.Size > h.maxAudioBytes {
			utils.Fail(c, errors.New(errors.KindTooLarge, "audio_too_large", "audio exceeds the upload limit"))
			return
		}
		data, err := readFile(file)
		if err != nil {
			utils.Fail(c, errors.Wrap(err, errors.KindInput, "invalid_request", "failed to read audio file"))
			return
		}
		req.Filename = file.Filename
		req.Audio = data
	}

	res, err := h.svc.Ingest(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}

	utils.Respond(c, http.StatusAccepted, res)
}

// formAudio accepts the file under any of the field names clients use
func formAudio(c *gin.Context) *multipart.FileHeader {
	for _, field := range []string{"audio", "audio_file", "file"} {
		if file, err := c.FormFile(field); err == nil {
			return file
		}
	}
	return nil
}

func readFile(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

// listDictations handles GET /api/v1/dictations
func (h *Handler) listDictations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(dictation.DefaultListLimit)))
	if err != nil || limit < 1 {
		limit = dictation.DefaultListLimit
	}
	if limit > dictation.MaxListLimit {
		limit = dictation.MaxListLimit
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	dictations, err := h.svc.List(c.Request.Context(), caller(c), limit, offset)
	if err != nil {
		utils.Fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(dictations))
	for _, d := range dictations {
		items = append(items, listItem(d))
	}

	utils.Success(c, gin.H{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"count":  len(items),
	})
}

func listItem(d model.Dictation) gin.H {
	item := gin.H{
		"id":         d.ID.String(),
		"created_at": d.CreatedAt,
		"status":     d.Status,
	}
	if d.AudioFormat != nil {
		item["audio_format"] = *d.AudioFormat
	}
	if d.DurationSeconds != nil {
		item["duration_seconds"] = *d.DurationSeconds
	}
	if d.PatientRef != nil {
		item["patient_ref"] = *d.PatientRef
	}
	if d.ErrorCode != nil {
		item["error_code"] = *d.ErrorCode
	}

	// Transcript preview (first 100 characters)
	if transcript := d.Transcript(); transcript != "" {
		if runes := []rune(transcript); len(runes) > previewLength {
			transcript = string(runes[:previewLength]) + "..."
		}
		item["transcript_preview"] = transcript
	}
	return item
}

// getDictation handles GET /api/v1/dictations/:id
func (h *Handler) getDictation(c *gin.Context) {
	id, ok := dictationID(c)
	if !ok {
		return
	}

	d, err := h.svc.Get(c.Request.Context(), caller(c), id)
	if err != nil {
		utils.Fail(c, err)
		return
	}

	utils.Success(c, d)
}

// processDictation handles POST /api/v1/dictations/:id/process
func (h *Handler) processDictation(c *gin.Context) {
	id, ok := dictationID(c)
	if !ok {
		return
	}

	n, err := h.svc.Extract(c.Request.Context(), caller(c), id)
	if err != nil {
		h.log.Warn().Err(err).Str("dictation_id", id.String()).Str("reason", errors.ReasonOf(err)).Msg("Extraction rejected")
		utils.Fail(c, err)
		return
	}

	utils.Success(c, n)
}

// getNote handles GET /api/v1/dictations/:id/note
func (h *Handler) getNote(c *gin.Context) {
	id, ok := dictationID(c)
	if !ok {
		return
	}

	n, err := h.svc.GetNote(c.Request.Context(), caller(c), id)
	if err != nil {
		utils.Fail(c, err)
		return
	}

	utils.Success(c, n)
}

// serveBlob handles GET /blobs/*path for signed local blob URLs
func (h *Handler) serveBlob(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")

	if err := h.localBlobs.Verify(path, c.Query("expires"), c.Query("sig")); err != nil {
		utils.Fail(c, errors.Wrap(err, errors.KindForbidden, "invalid_signature", "signed url is invalid or expired"))
		return
	}

	file, err := h.localBlobs.Resolve(path)
	if err != nil {
		utils.Fail(c, errors.Wrap(err, errors.KindNotFound, "not_found", "blob not found"))
		return
	}

	c.File(file)
}

func dictationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.Fail(c, errors.Wrap(err, errors.KindInput, "invalid_request", "invalid dictation id format"))
		return uuid.Nil, false
	}
	return id, true
}
