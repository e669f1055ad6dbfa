package ports

import (
	"context"

	"scour/internal/domain"
)

// JobStore persists resumable scour jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job domain.ScourJob) error
	GetJob(ctx context.Context, id string) (domain.ScourJob, error)
	SaveJob(ctx context.Context, job domain.ScourJob) error
	ListRunningJobs(ctx context.Context, limit int) ([]domain.ScourJob, error)
}

// JobLocker provides per-job mutual exclusion for advances. ok is false when
// another holder owns the lock; unlock must be called exactly once when ok.
type JobLocker interface {
	TryLockJob(ctx context.Context, jobID string) (unlock func(), ok bool, err error)
}
