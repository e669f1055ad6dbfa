// Package scour drives the per-source pipeline and the resumable scour jobs
// that run it across many sources.
package scour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/metrics"
	"scour/internal/ports"
	"scour/internal/services/drafts"
	"scour/internal/services/health"
	"scour/internal/services/quota"
	"scour/internal/services/validator"
)

const (
	ReasonSourceTimeout = "source_timeout"
	ReasonNoEvidence    = "no_evidence"
	ReasonCanceled      = "canceled"
	ReasonNotFound      = "source_not_found"
	ReasonDisabled      = "source_disabled"

	recentIncidentLimit = 30
)

// The pipeline stages, satisfied by the evidence, drafts, validator, dedupe
// and health packages.
type (
	EvidenceAcquirer interface {
		Acquire(ctx context.Context, src domain.Source, daysBack int) ([]domain.EvidenceItem, string, error)
	}
	DraftGenerator interface {
		Generate(ctx context.Context, in drafts.Input) (drafts.Result, error)
	}
	IncidentValidator interface {
		Validate(draft domain.IncidentDraft, src domain.Source, evidence []domain.EvidenceItem, daysBack int) (domain.Incident, error)
	}
	DuplicateResolver interface {
		Resolve(ctx context.Context, inc domain.Incident, since time.Time) (*domain.Incident, bool, error)
	}
	HealthRecorder interface {
		RecordOutcome(ctx context.Context, sourceID string, out health.Outcome) (domain.SourceHealthState, error)
	}
)

// SourceResult is the outcome of one per-source run.
type SourceResult struct {
	SourceID   string
	Outcome    health.OutcomeKind
	Reason     string
	Severity   domain.Severity
	Confidence *float64
	QueryUsed  string
	// Incident is set when Outcome is created.
	Incident *domain.Incident
	// DuplicateOf is the existing incident id when Outcome is dup and the
	// duplicate was found in the store.
	DuplicateOf string
	// Fatal is set when the run could not be attempted or recorded, e.g. the
	// caller's quota is spent. The job must not count the source.
	Fatal error
}

type Runner struct {
	sources   ports.SourceRepository
	incidents ports.IncidentRepository
	evidence  EvidenceAcquirer
	drafts    DraftGenerator
	validator IncidentValidator
	dedupe    DuplicateResolver
	health    HealthRecorder
	publisher ports.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type RunnerDeps struct {
	Sources   ports.SourceRepository
	Incidents ports.IncidentRepository
	Evidence  EvidenceAcquirer
	Drafts    DraftGenerator
	Validator IncidentValidator
	Dedupe    DuplicateResolver
	Health    HealthRecorder
	Publisher ports.EventPublisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func NewRunner(d RunnerDeps) *Runner {
	pub := d.Publisher
	if pub == nil {
		pub = ports.NopPublisher{}
	}
	return &Runner{
		sources:   d.Sources,
		incidents: d.Incidents,
		evidence:  d.Evidence,
		drafts:    d.Drafts,
		validator: d.Validator,
		dedupe:    d.Dedupe,
		health:    d.Health,
		publisher: pub,
		metrics:   d.Metrics,
		logger:    logging.NewComponentLogger(d.Logger, "scour"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunSourceByID loads the source and runs it. Unknown or disabled sources are
// reported as errors without touching health state.
func (r *Runner) RunSourceByID(ctx context.Context, sourceID string, timeout time.Duration, daysBack int) SourceResult {
	src, err := r.sources.GetSource(ctx, sourceID)
	if errors.Is(err, ports.ErrNotFound) {
		return SourceResult{SourceID: sourceID, Outcome: health.OutcomeError, Reason: ReasonNotFound}
	}
	if err != nil {
		return SourceResult{SourceID: sourceID, Fatal: fmt.Errorf("load source %s: %w", sourceID, err)}
	}
	if !src.Enabled {
		return SourceResult{SourceID: sourceID, Outcome: health.OutcomeError, Reason: ReasonDisabled}
	}
	return r.RunSource(ctx, src, timeout, daysBack)
}

// RunSource races the pipeline for src against timeout and records the
// outcome with the health tracker.
func (r *Runner) RunSource(ctx context.Context, src domain.Source, timeout time.Duration, daysBack int) SourceResult {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gate := &commitGate{}
	done := make(chan SourceResult, 1)
	go func() {
		done <- r.pipeline(runCtx, src, daysBack, gate)
	}()

	var res SourceResult
	select {
	case res = <-done:
	case <-runCtx.Done():
		if gate.abandon() {
			res = SourceResult{Outcome: health.OutcomeError}
		} else {
			// The pipeline is already writing the incident; report what it did.
			res = <-done
		}
	}
	res.SourceID = src.ID
	if res.Outcome == health.OutcomeError && res.Fatal == nil && runCtx.Err() != nil {
		res.Reason = ReasonSourceTimeout
		if ctx.Err() != nil {
			res.Reason = ReasonCanceled
		}
	}

	if res.Fatal != nil {
		return res
	}
	r.metrics.SourceOutcome(string(res.Outcome))
	r.logger.Info("source processed",
		"source_id", src.ID,
		"outcome", res.Outcome,
		"reason", res.Reason,
		"query", res.QueryUsed)

	if res.Reason == ReasonCanceled {
		return res
	}
	if _, err := r.health.RecordOutcome(context.WithoutCancel(ctx), src.ID, health.Outcome{
		Kind:       res.Outcome,
		Reason:     res.Reason,
		Severity:   res.Severity,
		Confidence: res.Confidence,
	}); err != nil {
		r.logger.Warn("health record failed", "source_id", src.ID, "error", err)
	}
	return res
}

func (r *Runner) pipeline(ctx context.Context, src domain.Source, daysBack int, gate *commitGate) SourceResult {
	res := SourceResult{SourceID: src.ID}
	if daysBack < 1 {
		daysBack = 1
	}
	since := r.now().AddDate(0, 0, -daysBack)

	evidence, query, err := r.evidence.Acquire(ctx, src, daysBack)
	res.QueryUsed = query
	if err != nil {
		return r.failed(res, err)
	}
	if len(evidence) == 0 {
		res.Outcome, res.Reason = health.OutcomeLow, ReasonNoEvidence
		return res
	}

	recent, err := r.incidents.ListRecentIncidents(ctx, since, recentIncidentLimit)
	if err != nil {
		return r.failed(res, fmt.Errorf("recent incidents: %w", err))
	}
	hints := make([]drafts.RecentIncident, 0, len(recent))
	for _, inc := range recent {
		hints = append(hints, drafts.RecentIncident{Title: inc.Title, Location: inc.Location, Country: inc.Country})
	}

	gen, err := r.drafts.Generate(ctx, drafts.Input{
		Evidence:        evidence,
		SourceHint:      sourceHint(src),
		CountryHint:     src.Country,
		DaysBack:        daysBack,
		RecentIncidents: hints,
	})
	if err != nil {
		return r.failed(res, err)
	}

	var draft domain.IncidentDraft
	switch v := gen.(type) {
	case drafts.Valid:
		draft = v.Draft
	case drafts.LowConfidence:
		res.Confidence = floatPtr(v.Confidence)
		if v.IsDuplicate() {
			res.Outcome, res.Reason = health.OutcomeDup, drafts.ReasonDuplicate
			return res
		}
		res.Outcome, res.Reason = health.OutcomeLow, v.Label()
		return res
	case drafts.Malformed, drafts.SchemaViolation:
		res.Outcome, res.Reason = health.OutcomeLow, v.Label()
		return res
	default:
		return r.failed(res, fmt.Errorf("unexpected draft result %T", gen))
	}

	inc, err := r.validator.Validate(draft, src, evidence, daysBack)
	if err != nil {
		var rej *validator.Rejection
		if !errors.As(err, &rej) {
			return r.failed(res, err)
		}
		res.Severity, res.Confidence, res.Reason = rej.Severity, floatPtr(rej.Confidence), rej.Reason
		res.Outcome = health.OutcomeReject
		if rej.Reason == validator.ReasonLowConfidence {
			res.Outcome = health.OutcomeLow
		}
		return res
	}
	res.Severity, res.Confidence = inc.Severity, floatPtr(inc.AIConfidence)

	existing, merged, err := r.dedupe.Resolve(ctx, inc, since)
	if err != nil {
		return r.failed(res, err)
	}
	if merged {
		res.Outcome, res.Reason, res.DuplicateOf = health.OutcomeDup, drafts.ReasonDuplicate, existing.ID
		return res
	}

	if err := ctx.Err(); err != nil {
		return r.failed(res, err)
	}
	if !gate.commit() {
		return r.failed(res, context.DeadlineExceeded)
	}
	if err := r.incidents.CreateIncident(context.WithoutCancel(ctx), &inc); err != nil {
		return r.failed(res, fmt.Errorf("create incident: %w", err))
	}
	res.Outcome, res.Incident = health.OutcomeCreated, &inc
	if err := r.publisher.PublishIncidentCreated(ctx, inc); err != nil {
		r.logger.Warn("publish incident failed", "incident_id", inc.ID, "error", err)
	}
	return res
}

// commitGate settles the race between the pipeline persisting an incident and
// RunSource giving up on it at the deadline. Exactly one side wins.
type commitGate struct {
	state atomic.Int32
}

const (
	gateOpen int32 = iota
	gateCommitted
	gateAbandoned
)

func (g *commitGate) commit() bool  { return g.state.CompareAndSwap(gateOpen, gateCommitted) }
func (g *commitGate) abandon() bool { return g.state.CompareAndSwap(gateOpen, gateAbandoned) }

func (r *Runner) failed(res SourceResult, err error) SourceResult {
	if errors.Is(err, quota.ErrQuotaExceeded) {
		res.Fatal = err
		return res
	}
	res.Outcome, res.Reason = health.OutcomeError, err.Error()
	return res
}

func sourceHint(src domain.Source) string {
	if src.Name != "" && src.URL != "" {
		return src.Name + " (" + src.URL + ")"
	}
	if src.Name != "" {
		return src.Name
	}
	return src.URL
}

func floatPtr(f float64) *float64 { return &f }
