package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"scour/internal/domain"
)

// Jobs are stored as a JSON document next to the columns needed to query them.

func (db *DB) CreateJob(ctx context.Context, job domain.ScourJob) error {
	state, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO scour_jobs (id, status, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, job.ID, string(job.Status), state, job.CreatedAt, job.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return err
}

func (db *DB) GetJob(ctx context.Context, id string) (domain.ScourJob, error) {
	var state []byte
	err := db.Pool.QueryRow(ctx, `SELECT state FROM scour_jobs WHERE id = $1`, id).Scan(&state)
	if err != nil {
		return domain.ScourJob{}, notFound(err)
	}
	var job domain.ScourJob
	if err := json.Unmarshal(state, &job); err != nil {
		return domain.ScourJob{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

func (db *DB) SaveJob(ctx context.Context, job domain.ScourJob) error {
	state, err := json.Marshal(job)
	if err != nil {
		return err
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE scour_jobs SET status = $2, state = $3, updated_at = $4 WHERE id = $1
	`, job.ID, string(job.Status), state, job.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRunningJobs returns the oldest running jobs first.
func (db *DB) ListRunningJobs(ctx context.Context, limit int) ([]domain.ScourJob, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT state FROM scour_jobs WHERE status = 'running' ORDER BY created_at LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	states, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}
	out := make([]domain.ScourJob, 0, len(states))
	for _, state := range states {
		var job domain.ScourJob
		if err := json.Unmarshal(state, &job); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		out = append(out, job)
	}
	return out, nil
}

// TryLockJob takes a session-level advisory lock keyed by the job id. The
// lock lives on a dedicated pool connection that is held until unlock.
func (db *DB) TryLockJob(ctx context.Context, jobID string) (func(), bool, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, jobID).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, jobID); err != nil {
			// A connection we cannot unlock on must not go back to the pool
			// still holding the lock.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}
	return unlock, true, nil
}
