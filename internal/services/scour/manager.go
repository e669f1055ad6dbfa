package scour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/metrics"
	"scour/internal/ports"
	"scour/internal/services/health"
)

var (
	ErrJobNotFound = errors.New("scour job not found")
	ErrJobBusy     = errors.New("scour job is being advanced by another caller")
)

// AdvanceOptions bound one Advance call.
type AdvanceOptions struct {
	TimeBudget    time.Duration
	SourceTimeout time.Duration
	BatchSize     int
	DaysBack      int
}

func DefaultAdvanceOptions() AdvanceOptions {
	return AdvanceOptions{
		TimeBudget:    60 * time.Second,
		SourceTimeout: 30 * time.Second,
		BatchSize:     3,
		DaysBack:      7,
	}
}

// Clamp bounds caller-supplied options to the ranges the service supports.
// Zero values take defaults.
func (o AdvanceOptions) Clamp() AdvanceOptions {
	def := DefaultAdvanceOptions()
	if o.TimeBudget <= 0 {
		o.TimeBudget = def.TimeBudget
	}
	o.TimeBudget = clampDuration(o.TimeBudget, 10*time.Second, 85*time.Second)
	if o.SourceTimeout <= 0 {
		o.SourceTimeout = def.SourceTimeout
	}
	o.SourceTimeout = clampDuration(o.SourceTimeout, 15*time.Second, 55*time.Second)
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	o.BatchSize = min(o.BatchSize, 10)
	if o.DaysBack <= 0 {
		o.DaysBack = def.DaysBack
	}
	o.DaysBack = min(o.DaysBack, 30)
	return o
}

func (o AdvanceOptions) withDefaults() AdvanceOptions {
	def := DefaultAdvanceOptions()
	if o.TimeBudget <= 0 {
		o.TimeBudget = def.TimeBudget
	}
	if o.SourceTimeout <= 0 {
		o.SourceTimeout = def.SourceTimeout
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.DaysBack <= 0 {
		o.DaysBack = def.DaysBack
	}
	return o
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// Progress is the job state after an Advance call plus what that call did.
type Progress struct {
	Job                domain.ScourJob
	ProcessedThisCall  int
	CreatedThisCall    int
	ErrorsThisCall     []domain.JobError
	RejectionsThisCall []domain.JobRejection
}

func (p Progress) Done() bool { return p.Job.Status == domain.JobDone }

// SourceRunner runs one source id through the pipeline.
type SourceRunner interface {
	RunSourceByID(ctx context.Context, sourceID string, timeout time.Duration, daysBack int) SourceResult
}

type Manager struct {
	jobs    ports.JobStore
	locker  ports.JobLocker
	sources ports.SourceRepository
	runner  SourceRunner
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewManager(jobs ports.JobStore, locker ports.JobLocker, sources ports.SourceRepository, runner SourceRunner, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		jobs:    jobs,
		locker:  locker,
		sources: sources,
		runner:  runner,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "scour-jobs"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob persists a new running job over sourceIDs, or over every enabled
// source when sourceIDs is empty. maxSources > 0 caps the list. A job over no
// sources is created already done.
func (m *Manager) CreateJob(ctx context.Context, sourceIDs []string, maxSources int) (domain.ScourJob, error) {
	ids := uniqueIDs(sourceIDs)
	if len(ids) == 0 {
		enabled, err := m.sources.ListEnabledSources(ctx)
		if err != nil {
			return domain.ScourJob{}, fmt.Errorf("list enabled sources: %w", err)
		}
		for _, src := range enabled {
			ids = append(ids, src.ID)
		}
	}
	if maxSources > 0 && len(ids) > maxSources {
		ids = ids[:maxSources]
	}
	now := m.now()
	job := domain.ScourJob{
		ID:         uuid.NewString(),
		SourceIDs:  ids,
		Errors:     []domain.JobError{},
		Rejections: []domain.JobRejection{},
		Status:     domain.JobRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if len(ids) == 0 {
		job.Status = domain.JobDone
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return domain.ScourJob{}, fmt.Errorf("create job: %w", err)
	}
	m.logger.Info("scour job created", "job_id", job.ID, "sources", len(ids))
	return job, nil
}

// Status returns the persisted job.
func (m *Manager) Status(ctx context.Context, jobID string) (domain.ScourJob, error) {
	job, err := m.jobs.GetJob(ctx, jobID)
	if errors.Is(err, ports.ErrNotFound) {
		return domain.ScourJob{}, ErrJobNotFound
	}
	if err != nil {
		return domain.ScourJob{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return job, nil
}

// Advance processes the job's remaining sources in batches until the time
// budget is spent or the job is drained, saving after every batch. Only one
// Advance per job runs at a time; a concurrent call gets ErrJobBusy.
func (m *Manager) Advance(ctx context.Context, jobID string, opts AdvanceOptions) (Progress, error) {
	opts = opts.withDefaults()
	unlock, ok, err := m.locker.TryLockJob(ctx, jobID)
	if err != nil {
		return Progress{}, fmt.Errorf("lock job %s: %w", jobID, err)
	}
	if !ok {
		return Progress{}, ErrJobBusy
	}
	defer unlock()

	job, err := m.Status(ctx, jobID)
	if err != nil {
		return Progress{}, err
	}
	progress := Progress{Job: job, ErrorsThisCall: []domain.JobError{}, RejectionsThisCall: []domain.JobRejection{}}
	if job.Status == domain.JobDone {
		return progress, nil
	}

	start := m.now()
	defer func() { m.metrics.AdvanceDuration(m.now().Sub(start).Seconds()) }()
	deadline := start.Add(opts.TimeBudget)

	// The first source always runs so every call makes progress.
	for progress.Job.Status == domain.JobRunning {
		stepErr := m.Step(ctx, &progress, opts, deadline)
		if err := m.jobs.SaveJob(context.WithoutCancel(ctx), progress.Job); err != nil {
			return progress, fmt.Errorf("save job %s: %w", jobID, err)
		}
		if errors.Is(stepErr, errBudgetSpent) {
			break
		}
		if stepErr != nil {
			return progress, stepErr
		}
		if ctx.Err() != nil {
			return progress, ctx.Err()
		}
	}
	m.logger.Info("scour job advanced",
		"job_id", jobID,
		"next_index", progress.Job.NextIndex,
		"total", progress.Job.Total(),
		"processed_this_call", progress.ProcessedThisCall,
		"status", progress.Job.Status)
	return progress, nil
}

// errBudgetSpent stops a step when the next source could outlive the call's
// time budget.
var errBudgetSpent = errors.New("scour: time budget spent")

// Step runs the next batch of the job held in p and updates it in place. It
// does not persist; callers checkpoint after each step. A non-nil error means
// the batch stopped early at a source that was not counted. A source other
// than the first of the call only starts when a full SourceTimeout still fits
// before deadline; a zero deadline disables the check.
func (m *Manager) Step(ctx context.Context, p *Progress, opts AdvanceOptions, deadline time.Time) error {
	opts = opts.withDefaults()
	batch := p.Job.NextBatch(opts.BatchSize)
	for _, id := range batch {
		if err := ctx.Err(); err != nil {
			m.checkpoint(&p.Job)
			return err
		}
		if !deadline.IsZero() && p.ProcessedThisCall > 0 && deadline.Sub(m.now()) < opts.SourceTimeout {
			m.checkpoint(&p.Job)
			return errBudgetSpent
		}
		res := m.runner.RunSourceByID(ctx, id, opts.SourceTimeout, opts.DaysBack)
		if res.Fatal != nil {
			m.checkpoint(&p.Job)
			return res.Fatal
		}
		if res.Reason == ReasonCanceled {
			m.checkpoint(&p.Job)
			return ctx.Err()
		}
		record(p, res)
		p.Job.NextIndex++
	}
	m.checkpoint(&p.Job)
	return nil
}

func (m *Manager) checkpoint(job *domain.ScourJob) {
	job.UpdatedAt = m.now()
	if job.NextIndex >= len(job.SourceIDs) {
		job.NextIndex = len(job.SourceIDs)
		job.Status = domain.JobDone
	}
}

func record(p *Progress, res SourceResult) {
	job := &p.Job
	job.Processed++
	p.ProcessedThisCall++
	switch res.Outcome {
	case health.OutcomeCreated:
		job.Created++
		p.CreatedThisCall++
	case health.OutcomeDup:
		job.DuplicatesSkipped++
	case health.OutcomeLow:
		job.LowConfidenceSkipped++
	}
	switch res.Outcome {
	case health.OutcomeError:
		e := domain.JobError{SourceID: res.SourceID, Reason: res.Reason}
		job.Errors = append(job.Errors, e)
		p.ErrorsThisCall = append(p.ErrorsThisCall, e)
	case health.OutcomeReject, health.OutcomeLow:
		rj := domain.JobRejection{
			SourceID:   res.SourceID,
			Outcome:    string(res.Outcome),
			Reason:     res.Reason,
			Severity:   res.Severity,
			Confidence: res.Confidence,
		}
		job.Rejections = append(job.Rejections, rj)
		p.RejectionsThisCall = append(p.RejectionsThisCall, rj)
	}
}

func uniqueIDs(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, id := range in {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
