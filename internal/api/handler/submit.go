package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/atharai/relay/internal/api/response"
	"github.com/atharai/relay/internal/config"
	"github.com/atharai/relay/internal/store"
	"github.com/atharai/relay/pkg/models"
	"github.com/google/uuid"
)

// Prompt length limits (characters).
const (
	MaxTextPromptLen  = 20000
	MaxImagePromptLen = 2000
)

type submitRequest struct {
	Prompt     string         `json:"prompt"`
	Parameters map[string]any `json:"parameters"`
	Quality    string         `json:"quality"`
}

type submitResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	JobTag string    `json:"job_tag"`
}

// NewSubmitTextHandler returns the handler for POST /inference.
func NewSubmitTextHandler(st store.Store, tiers map[string]string) http.HandlerFunc {
	return newSubmitHandler(st, tiers, models.JobTypeText, MaxTextPromptLen)
}

// NewSubmitImageHandler returns the handler for POST /inference/image.
func NewSubmitImageHandler(st store.Store, tiers map[string]string) http.HandlerFunc {
	return newSubmitHandler(st, tiers, models.JobTypeImage, MaxImagePromptLen)
}

// newSubmitHandler validates the prompt, resolves the model from the
// server-side quality allow-list and enqueues a pending job. It responds 202
// immediately; the worker picks the job up on its next poll.
func newSubmitHandler(st store.Store, tiers map[string]string, jobType string, maxPromptLen int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if strings.TrimSpace(req.Prompt) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "prompt is required", nil)
			return
		}
		if len(req.Prompt) > maxPromptLen {
			response.Error(w, http.StatusBadRequest, "PROMPT_TOO_LONG", "prompt exceeds maximum length",
				map[string]int{"max_length": maxPromptLen})
			return
		}

		tier := req.Quality
		if tier == "" {
			tier = config.DefaultTier
		}
		// the client selects a tier; the model id is always ours
		model, ok := tiers[tier]
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_QUALITY", "unknown quality tier", nil)
			return
		}

		now := time.Now().UTC()
		job := &models.Job{
			ID:         uuid.New(),
			JobTag:     models.NewJobTag(),
			Type:       jobType,
			Model:      model,
			Prompt:     req.Prompt,
			Parameters: req.Parameters,
			Status:     models.JobStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := st.CreateJob(r.Context(), job); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to enqueue job", nil)
			return
		}

		response.Accepted(w, submitResponse{JobID: job.ID, JobTag: job.JobTag})
	}
}
