package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/atharai/relay/pkg/models"
	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store, used when DATABASE_URL is
// not set (development mode) and by unit tests. The single mutex makes claim
// atomic: only one goroutine can move a job out of pending at a time.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  []*models.Job // insertion order, which is creation order
	chats []*models.Chat
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, copyJob(job))
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findJob(id)
	if j == nil {
		return nil, ErrNotFound
	}
	return copyJob(j), nil
}

func (s *MemoryStore) ClaimNextPending(_ context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Status == models.JobStatusPending {
			now := time.Now().UTC()
			j.Status = models.JobStatusProcessing
			j.StartedAt = &now
			j.UpdatedAt = now
			return copyJob(j), nil
		}
	}
	return nil, ErrNoPendingJobs
}

func (s *MemoryStore) MarkJobDone(_ context.Context, id uuid.UUID, result json.RawMessage, cached bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findJob(id)
	if j == nil {
		return ErrNotFound
	}
	j.Status = models.JobStatusDone
	j.Result = append(json.RawMessage(nil), result...)
	j.Cached = cached
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkJobFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findJob(id)
	if j == nil {
		return ErrNotFound
	}
	j.Status = models.JobStatusFailed
	j.Error = &errMsg
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CountJobsByStatus(_ context.Context, status string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, j := range s.jobs {
		if j.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateChat(_ context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *chat
	c.Result = append(json.RawMessage(nil), chat.Result...)
	s.chats = append(s.chats, &c)
	return nil
}

func (s *MemoryStore) ListRecentChats(_ context.Context, limit int) ([]*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Chat{}
	// chats are appended in creation order; walk backwards for newest first
	for i := len(s.chats) - 1; i >= 0 && len(out) < limit; i-- {
		c := *s.chats[i]
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) CountChats(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats), nil
}

func (s *MemoryStore) DeleteAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = nil
	s.chats = nil
	return nil
}

// findJob must be called with the mutex held.
func (s *MemoryStore) findJob(id uuid.UUID) *models.Job {
	for _, j := range s.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// copyJob returns a deep enough copy that callers cannot mutate stored state.
func copyJob(j *models.Job) *models.Job {
	c := *j
	c.Result = append(json.RawMessage(nil), j.Result...)
	if j.Parameters != nil {
		c.Parameters = make(map[string]any, len(j.Parameters))
		for k, v := range j.Parameters {
			c.Parameters[k] = v
		}
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	return &c
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
