package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/fileforge/fileforge/internal/convert"
	"github.com/fileforge/fileforge/internal/dispatch"
	"github.com/fileforge/fileforge/internal/fileutil"
	"github.com/fileforge/fileforge/internal/observability"
	"github.com/fileforge/fileforge/internal/runner"
)

// ConvertHandler handles conversion submissions.
type ConvertHandler struct {
	logger         *observability.Logger
	runner         *runner.Runner
	uploadDir      string
	maxUploadBytes int64
}

func NewConvertHandler(logger *observability.Logger, r *runner.Runner, uploadDir string, maxUploadBytes int64) *ConvertHandler {
	return &ConvertHandler{
		logger:         logger,
		runner:         r,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// AcceptedDTO is the immediate response to a submission; the caller
// polls the status endpoint for the outcome.
type AcceptedDTO struct {
	ConversionID string `json:"conversionId"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

// Convert handles POST /api/convert. Everything that can be rejected is
// rejected before a job record exists, so failed validation never
// produces a failed job.
func (h *ConvertHandler) Convert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "request is not valid multipart form data", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", "")
		return
	}
	defer file.Close()

	targetFormat, err := dispatch.Normalize(r.FormValue("targetFormat"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "targetFormat is required", err.Error())
		return
	}

	tier, err := convert.ParseTier(r.FormValue("quality"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "quality must be low, medium or high", "")
		return
	}
	opts := convert.Options{
		Quality:         tier,
		Compress:        r.FormValue("compress") == "true",
		OCREnabled:      r.FormValue("ocrEnabled") == "true",
		TableExtraction: r.FormValue("tableExtraction") == "true",
	}

	sourceFormat := fileutil.Ext(header.Filename)
	if sourceFormat == "" {
		sourceFormat = "bin"
	}

	uploadPath := filepath.Join(h.uploadDir, uuid.NewString()+"."+sourceFormat)
	size, err := h.stageUpload(uploadPath, file)
	if err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large", "")
			return
		}
		h.logger.Error().Err(err).Msg("could not stage upload")
		writeError(w, http.StatusInternalServerError, "could not store uploaded file", "")
		return
	}

	j, err := h.runner.Submit(r.Context(), runner.Request{
		SessionID:        sessionID(w, r),
		UploadPath:       uploadPath,
		OriginalFileName: filepath.Base(header.Filename),
		OriginalFormat:   sourceFormat,
		TargetFormat:     targetFormat,
		FileSizeBytes:    size,
		Options:          opts,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("could not submit job")
		writeError(w, http.StatusInternalServerError, "could not start conversion", "")
		return
	}

	writeJSON(w, http.StatusOK, AcceptedDTO{
		ConversionID: j.ID,
		Status:       string(j.Status),
		Message:      "conversion started; poll /api/conversion/{id} for status",
	})
}

func (h *ConvertHandler) stageUpload(path string, src io.Reader) (int64, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(out, src)
	cerr := out.Close()
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	if cerr != nil {
		os.Remove(path)
		return 0, cerr
	}
	return size, nil
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
