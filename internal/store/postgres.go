package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atharai/relay/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, job_tag, type, model, prompt, parameters, status, result, cached, error_message, started_at, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, job_tag, type, model, prompt, parameters, status, cached, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.JobTag, job.Type, job.Model, job.Prompt, job.Parameters,
		job.Status, job.Cached, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimNextPending selects the oldest pending job and flips it to processing
// in a single statement. FOR UPDATE SKIP LOCKED makes concurrent claimers skip
// a row another transaction is already claiming, so exactly one caller wins.
func (s *PostgresStore) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $1, started_at = now(), updated_at = now()
		 WHERE id = (
		   SELECT id FROM jobs
		   WHERE status = $2
		   ORDER BY created_at ASC
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		models.JobStatusProcessing, models.JobStatusPending)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPendingJobs
	}
	if err != nil {
		return nil, fmt.Errorf("claim next pending job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) MarkJobDone(ctx context.Context, id uuid.UUID, result json.RawMessage, cached bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, result = $3, cached = $4, updated_at = now() WHERE id = $1`,
		id, models.JobStatusDone, result, cached)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkJobFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		id, models.JobStatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count jobs by status: %w", err)
	}
	return count, nil
}

// --- Chats ---

func (s *PostgresStore) CreateChat(ctx context.Context, chat *models.Chat) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, job_id, type, model, prompt, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		chat.ID, chat.JobID, chat.Type, chat.Model, chat.Prompt, chat.Result, chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecentChats(ctx context.Context, limit int) ([]*models.Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, type, model, prompt, result, created_at
		 FROM chats ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent chats: %w", err)
	}
	defer rows.Close()

	chats := []*models.Chat{}
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.JobID, &c.Type, &c.Model, &c.Prompt, &c.Result, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

func (s *PostgresStore) CountChats(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chats: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE jobs, chats`); err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.JobTag, &j.Type, &j.Model, &j.Prompt, &j.Parameters,
		&j.Status, &j.Result, &j.Cached, &j.Error, &j.StartedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
