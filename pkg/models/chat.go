package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Chat is an append-only record of a completed prompt/response pair, written
// by the worker for the history endpoint. Nothing in the hot path reads it.
type Chat struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	JobID     uuid.UUID       `db:"job_id"     json:"job_id"`
	Type      string          `db:"type"       json:"type"`
	Model     string          `db:"model"      json:"model"`
	Prompt    string          `db:"prompt"     json:"prompt"`
	Result    json.RawMessage `db:"result"     json:"result"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
