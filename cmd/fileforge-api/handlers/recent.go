package handlers

import (
	"net/http"

	"github.com/fileforge/fileforge/internal/job"
	"github.com/fileforge/fileforge/internal/observability"
)

const recentLimit = 10

// RecentHandler lists the caller's recent conversions.
type RecentHandler struct {
	logger *observability.Logger
	store  job.Store
}

func NewRecentHandler(logger *observability.Logger, store job.Store) *RecentHandler {
	return &RecentHandler{logger: logger, store: store}
}

// Recent handles GET /api/conversions. The list is scoped to the
// session cookie; a first-time caller gets an empty list, never an
// error.
func (h *RecentHandler) Recent(w http.ResponseWriter, r *http.Request) {
	session := sessionID(w, r)

	jobs, err := h.store.ListBySession(r.Context(), session, recentLimit)
	if err != nil {
		h.logger.Error().Str("session_id", session).Err(err).Msg("could not list conversions")
		writeError(w, http.StatusInternalServerError, "could not list conversions", "")
		return
	}

	dtos := make([]ConversionDTO, 0, len(jobs))
	for _, j := range jobs {
		dtos = append(dtos, toConversionDTO(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversions": dtos})
}
