package handler

import (
	"net/http"
	"strconv"

	"github.com/atharai/relay/internal/api/response"
	"github.com/atharai/relay/internal/store"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// NewHistoryHandler returns the handler for GET /inference/history.
// The limit query parameter is clamped to [1, 100], defaulting to 10.
func NewHistoryHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		if limit < 1 {
			limit = 1
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		chats, err := st.ListRecentChats(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, chats)
	}
}

// NewClearHandler returns the handler for POST /inference/clear, a privileged
// bulk wipe of jobs and history. Disabled unless the operator sets
// ALLOW_CLEAR=true.
func NewClearHandler(st store.Store, allowClear bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowClear {
			response.Error(w, http.StatusForbidden, "CLEAR_DISABLED", "Clearing is disabled", nil)
			return
		}

		if err := st.DeleteAll(r.Context()); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, map[string]bool{"cleared": true})
	}
}
