package models

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusFailed     = "failed"
)

const (
	JobTypeText  = "text"
	JobTypeImage = "image"
)

// Job is a queued unit of inference work. The API returns a job id on
// POST /inference; the client follows GET /inference/stream/{jobID} (or polls
// GET /inference/status/{jobID}) until status is done or failed.
//
// Status only ever moves forward: pending -> processing -> done | failed.
type Job struct {
	ID         uuid.UUID       `db:"id"            json:"id"`
	JobTag     string          `db:"job_tag"       json:"job_tag"`
	Type       string          `db:"type"          json:"type"`
	Model      string          `db:"model"         json:"model"`
	Prompt     string          `db:"prompt"        json:"prompt"`
	Parameters map[string]any  `db:"parameters"    json:"parameters,omitempty"`
	Status     string          `db:"status"        json:"status"`
	Result     json.RawMessage `db:"result"        json:"result,omitempty"`
	Cached     bool            `db:"cached"        json:"cached"`
	Error      *string         `db:"error_message" json:"error,omitempty"`
	StartedAt  *time.Time      `db:"started_at"    json:"started_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"    json:"updated_at"`
}

// Terminal reports whether no further status transitions can occur.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}

// NewJobTag returns a short random tag shown to users alongside the job id.
func NewJobTag() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return hex.EncodeToString(b)
}
