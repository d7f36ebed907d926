package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fileforge/fileforge/internal/job"
	"github.com/fileforge/fileforge/internal/observability"
)

// StatusHandler serves conversion status polls.
type StatusHandler struct {
	logger *observability.Logger
	store  job.Store
}

func NewStatusHandler(logger *observability.Logger, store job.Store) *StatusHandler {
	return &StatusHandler{logger: logger, store: store}
}

// Status handles GET /api/conversion/{id}.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, toConversionDTO(j))
}
