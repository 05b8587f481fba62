package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/atharai/relay/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrNoPendingJobs = errors.New("no pending jobs")

// Store is the data access interface. All persistence goes through here.
//
// ClaimNextPending is the only operation with write contention: given any
// number of concurrent callers and one pending job, exactly one claim may
// succeed. Both implementations guarantee that.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)

	// ClaimNextPending atomically moves the oldest pending job (FIFO by
	// creation time) to processing, stamps started_at and returns it.
	// Returns ErrNoPendingJobs when the queue is empty.
	ClaimNextPending(ctx context.Context) (*models.Job, error)

	// MarkJobDone and MarkJobFailed are terminal writes. They overwrite
	// unconditionally; the worker is the only terminal writer, so a repeat
	// write after a crash replay is harmless.
	MarkJobDone(ctx context.Context, id uuid.UUID, result json.RawMessage, cached bool) error
	MarkJobFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	CountJobsByStatus(ctx context.Context, status string) (int, error)

	CreateChat(ctx context.Context, chat *models.Chat) error
	ListRecentChats(ctx context.Context, limit int) ([]*models.Chat, error)
	CountChats(ctx context.Context) (int, error)

	// DeleteAll wipes jobs and chat history. Gated behind ALLOW_CLEAR at the
	// API layer; never called on the hot path.
	DeleteAll(ctx context.Context) error
}
