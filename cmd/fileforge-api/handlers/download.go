package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fileforge/fileforge/internal/job"
	"github.com/fileforge/fileforge/internal/observability"
	"github.com/fileforge/fileforge/internal/runner"
)

// DownloadHandler streams completed artifacts.
type DownloadHandler struct {
	logger *observability.Logger
	store  job.Store
	runner *runner.Runner
}

func NewDownloadHandler(logger *observability.Logger, store job.Store, r *runner.Runner) *DownloadHandler {
	return &DownloadHandler{logger: logger, store: store, runner: r}
}

// Download handles GET /api/download/{id}. Anything other than a
// completed job with its artifact still on disk is a 404: unknown ids,
// in-flight jobs, failures and already-reaped artifacts all look the
// same to the caller.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	j, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversion not found", "")
			return
		}
		h.logger.Error().Str("job_id", id).Err(err).Msg("could not load job")
		writeError(w, http.StatusInternalServerError, "could not load conversion", "")
		return
	}

	if j.Status != job.StatusCompleted || j.DownloadPath == nil {
		writeError(w, http.StatusNotFound, "no downloadable result for this conversion", "")
		return
	}
	if _, err := os.Stat(*j.DownloadPath); err != nil {
		writeError(w, http.StatusNotFound, "converted file is no longer available", "")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadFileName(j)))
	ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
	http.ServeFile(ww, r, *j.DownloadPath)

	// Only a full-body download starts the reap clock. Range requests
	// (206) and precondition failures leave the artifact alone so a
	// chunked download manager can finish; the grace delay then covers
	// retries after the full fetch.
	if ww.Status() != http.StatusOK {
		return
	}
	h.runner.ScheduleArtifactRemoval(j.ID, *j.DownloadPath)

	h.logger.Info().
		Str("job_id", j.ID).
		Str("file", downloadFileName(j)).
		Msg("artifact downloaded")
}
