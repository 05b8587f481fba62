package handler

import (
	"errors"
	"net/http"

	"github.com/atharai/relay/internal/api/response"
	"github.com/atharai/relay/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// NewJobStatusHandler returns the handler for GET /inference/status/{jobID}.
func NewJobStatusHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}

		job, err := st.GetJob(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, job)
	}
}
