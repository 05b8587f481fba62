package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atharai/relay/internal/api/response"
	"github.com/atharai/relay/internal/store"
	"github.com/atharai/relay/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type updateEvent struct {
	Status    string     `json:"status"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type resultEvent struct {
	Result json.RawMessage `json:"result"`
	Cached bool            `json:"cached"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// NewJobStreamHandler returns the handler for GET /inference/stream/{jobID}.
//
// It relays job state over server-sent events by polling the store: one
// "update" event per observed status change, then a terminal "result" or
// "error" event, and always an "end" event before closing. Polling is good
// enough here because inference itself takes seconds. A dropped client
// cancels the request context and stops the poll immediately.
func NewJobStreamHandler(st store.Store, pollInterval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError,
				"STREAMING_UNSUPPORTED", "Streaming is not supported", nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		send := func(event string, payload any) {
			data, err := json.Marshal(payload)
			if err != nil {
				data = []byte("{}")
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
			flusher.Flush()
		}

		ctx := r.Context()
		defer func() {
			// skip the end event if the client is already gone
			if ctx.Err() == nil {
				send("end", struct{}{})
			}
		}()

		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			send("error", errorEvent{Error: "job_not_found"})
			return
		}

		lastStatus := ""
		for {
			job, err := st.GetJob(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				send("error", errorEvent{Error: "job_not_found"})
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				send("error", errorEvent{Error: "internal"})
				return
			}

			if job.Status != lastStatus {
				lastStatus = job.Status
				send("update", updateEvent{Status: job.Status, UpdatedAt: &job.UpdatedAt})
			}

			switch job.Status {
			case models.JobStatusDone:
				send("result", resultEvent{Result: job.Result, Cached: job.Cached})
				return
			case models.JobStatusFailed:
				msg := "unknown error"
				if job.Error != nil {
					msg = *job.Error
				}
				send("error", errorEvent{Error: msg})
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
		}
	}
}
