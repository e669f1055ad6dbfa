// Package scourrunner drives running scour jobs and the trend batch from a
// long-lived process.
package scourrunner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scour/internal/auth"
	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/services/scour"
)

const defaultPollInterval = 15 * time.Second

// JobAdvancer is the job manager surface the workers need.
type JobAdvancer interface {
	Advance(ctx context.Context, jobID string, opts scour.AdvanceOptions) (scour.Progress, error)
}

// JobLister finds jobs that still have sources left.
type JobLister interface {
	ListRunningJobs(ctx context.Context, limit int) ([]domain.ScourJob, error)
}

// Run starts concurrency workers that advance running jobs, one Advance call
// per dispatch. It returns when ctx is canceled and every worker has stopped.
// Workers act as the system identity, so quotas do not apply.
func Run(ctx context.Context, lister JobLister, advancer JobAdvancer, opts scour.AdvanceOptions, concurrency int, pollInterval time.Duration, logger *slog.Logger) {
	if concurrency < 1 {
		return
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	logger = logging.NewComponentLogger(logger, "scour-worker")
	ctx = auth.WithIdentity(ctx, auth.System)
	jobsCh := make(chan string, concurrency)

	var mu sync.Mutex
	inFlight := map[string]bool{}
	release := func(id string) {
		mu.Lock()
		delete(inFlight, id)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for id := range jobsCh {
				advanceOnce(ctx, advancer, id, opts, logger.With("worker", idx))
				release(id)
			}
		}(i)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	defer wg.Wait()
	defer close(jobsCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		jobs, err := lister.ListRunningJobs(ctx, concurrency*4)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("list running jobs failed", "error", err)
			}
			continue
		}
		for _, job := range jobs {
			mu.Lock()
			busy := inFlight[job.ID]
			if !busy {
				inFlight[job.ID] = true
			}
			mu.Unlock()
			if busy {
				continue
			}
			select {
			case jobsCh <- job.ID:
			case <-ctx.Done():
				release(job.ID)
				return
			}
		}
	}
}

func advanceOnce(ctx context.Context, advancer JobAdvancer, jobID string, opts scour.AdvanceOptions, logger *slog.Logger) {
	p, err := advancer.Advance(ctx, jobID, opts)
	switch {
	case err == nil:
		logger.Info("job advanced", "job_id", jobID, "next_index", p.Job.NextIndex, "total", p.Job.Total(), "done", p.Done())
	case errors.Is(err, scour.ErrJobBusy):
		logger.Debug("job busy, skipping", "job_id", jobID)
	case errors.Is(err, context.Canceled):
	default:
		logger.Error("advance failed", "job_id", jobID, "error", err)
	}
}

// Drain advances jobID until it is done, calling report after every call. It
// is the synchronous path for CLI use and shares the worker's step contract.
func Drain(ctx context.Context, advancer JobAdvancer, jobID string, opts scour.AdvanceOptions, report func(scour.Progress)) (scour.Progress, error) {
	for {
		p, err := advancer.Advance(ctx, jobID, opts)
		if report != nil && p.Job.ID != "" {
			report(p)
		}
		if err != nil {
			return p, err
		}
		if p.Done() {
			return p, nil
		}
		if err := ctx.Err(); err != nil {
			return p, err
		}
	}
}
