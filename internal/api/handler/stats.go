package handler

import (
	"net/http"

	"github.com/atharai/relay/internal/api/response"
	"github.com/atharai/relay/internal/store"
	"github.com/atharai/relay/pkg/models"
)

type statsResponse struct {
	Chats       int `json:"chats"`
	JobsPending int `json:"jobs_pending"`
}

// NewStatsHandler returns the handler for GET /stats.
func NewStatsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chats, err := st.CountChats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		pending, err := st.CountJobsByStatus(r.Context(), models.JobStatusPending)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, statsResponse{Chats: chats, JobsPending: pending})
	}
}
