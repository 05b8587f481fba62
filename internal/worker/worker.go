// Package worker runs the single-consumer loop that resolves queued inference
// jobs: claim the oldest pending job, serve it from the result cache or the
// remote provider, and write back a terminal state.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/atharai/relay/internal/cache"
	"github.com/atharai/relay/internal/inference"
	"github.com/atharai/relay/internal/store"
	"github.com/atharai/relay/pkg/models"
	"github.com/google/uuid"
)

// Worker is the background job consumer. One Worker processes one job at a
// time; running several worker processes is safe because the store's claim is
// atomic, but a single worker is the expected deployment.
type Worker struct {
	store        store.Store
	cache        cache.Cache
	client       inference.Client
	pollInterval time.Duration
	cacheTTL     time.Duration
}

// New creates a Worker. Dependencies are injected so the loop can be tested
// against in-memory stores and a mock client.
func New(st store.Store, ca cache.Cache, cl inference.Client, pollInterval, cacheTTL time.Duration) *Worker {
	return &Worker{
		store:        st,
		cache:        ca,
		client:       cl,
		pollInterval: pollInterval,
		cacheTTL:     cacheTTL,
	}
}

// Start runs the loop until ctx is cancelled. It never returns early: a
// failing iteration is logged and the loop sleeps until the next poll tick.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("worker started", "poll_interval", w.pollInterval)
	for {
		claimed := w.ProcessNext(ctx)
		if ctx.Err() != nil {
			slog.Info("worker stopped")
			return
		}
		if claimed {
			// drain the queue before sleeping again
			continue
		}
		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessNext claims and resolves at most one job, reporting whether a job
// was claimed. Panics are contained here so a poisoned job cannot take down
// the loop.
func (w *Worker) ProcessNext(ctx context.Context) (claimed bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in worker iteration", "error", r, "stack", string(debug.Stack()))
		}
	}()

	job, err := w.store.ClaimNextPending(ctx)
	if errors.Is(err, store.ErrNoPendingJobs) {
		return false
	}
	if err != nil {
		slog.Error("claim pending job", "error", err)
		return false
	}

	w.process(ctx, job)
	return true
}

func (w *Worker) process(ctx context.Context, job *models.Job) {
	key := cache.ResultKey(job.Model, job.Prompt, job.Parameters)

	val, hit, err := w.cache.Get(ctx, key)
	if err != nil {
		// cache trouble degrades to a miss
		slog.Warn("result cache get", "job_id", job.ID, "error", err)
	}
	if hit {
		if err := w.store.MarkJobDone(ctx, job.ID, val, true); err != nil {
			slog.Error("mark job done", "job_id", job.ID, "error", err)
			return
		}
		slog.Info("job served from cache", "job_id", job.ID, "type", job.Type, "model", job.Model)
		return
	}

	var result []byte
	switch job.Type {
	case models.JobTypeImage:
		result, err = w.client.GenerateImage(ctx, job.Model, job.Prompt, job.Parameters)
	default:
		result, err = w.client.GenerateText(ctx, job.Model, job.Prompt, job.Parameters)
	}
	if err != nil {
		// retries already happened inside the client; this failure is final
		slog.Error("job failed", "job_id", job.ID, "model", job.Model, "error", err)
		if serr := w.store.MarkJobFailed(ctx, job.ID, err.Error()); serr != nil {
			slog.Error("mark job failed", "job_id", job.ID, "error", serr)
		}
		return
	}

	chat := &models.Chat{
		ID:        uuid.New(),
		JobID:     job.ID,
		Type:      job.Type,
		Model:     job.Model,
		Prompt:    job.Prompt,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.store.CreateChat(ctx, chat); err != nil {
		// history is observability only; the job still completes
		slog.Error("append chat history", "job_id", job.ID, "error", err)
	}

	if err := w.store.MarkJobDone(ctx, job.ID, result, false); err != nil {
		slog.Error("mark job done", "job_id", job.ID, "error", err)
		return
	}
	if err := w.cache.Set(ctx, key, result, w.cacheTTL); err != nil {
		slog.Warn("result cache set", "job_id", job.ID, "error", err)
	}
	slog.Info("job completed", "job_id", job.ID, "type", job.Type, "model", job.Model)
}
