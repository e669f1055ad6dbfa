package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/metrics"
	"scour/internal/ports"
)

type OutcomeKind string

const (
	OutcomeCreated OutcomeKind = "created"
	OutcomeDup     OutcomeKind = "dup"
	OutcomeReject  OutcomeKind = "reject"
	OutcomeLow     OutcomeKind = "low"
	OutcomeError   OutcomeKind = "error"
)

// Outcome is one per-source run result as seen by the tracker.
type Outcome struct {
	Kind       OutcomeKind
	Reason     string
	Severity   domain.Severity
	Confidence *float64
}

const (
	historyLimit = 30

	ReasonNoCreateStreak = "no_create_streak"
	ReasonRejectStreak   = "reject_streak"
)

// Policy holds the auto-disable thresholds.
type Policy struct {
	MinRunsForNoCreate int
	NoCreateThreshold  int
	RejectThreshold    int
	// DuplicatesCountAsNoCreate decides whether a dup outcome extends the
	// no-create streak. Dups never extend the reject streak.
	DuplicatesCountAsNoCreate bool
}

func DefaultPolicy() Policy {
	return Policy{
		MinRunsForNoCreate:        6,
		NoCreateThreshold:         6,
		RejectThreshold:           5,
		DuplicatesCountAsNoCreate: true,
	}
}

type Tracker struct {
	store   ports.HealthStore
	sources ports.SourceRepository
	policy  Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(store ports.HealthStore, sources ports.SourceRepository, policy Policy, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:   store,
		sources: sources,
		policy:  policy,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "health"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Stats returns the current state; unknown sources get a zero state.
func (t *Tracker) Stats(ctx context.Context, sourceID string) (domain.SourceHealthState, error) {
	state, found, err := t.store.GetHealth(ctx, sourceID)
	if err != nil {
		return domain.SourceHealthState{}, fmt.Errorf("load health %s: %w", sourceID, err)
	}
	if !found {
		state = domain.SourceHealthState{SourceID: sourceID, History: []domain.HealthEntry{}}
	}
	return state, nil
}

// RecordOutcome folds one outcome into the source's state and disables the
// source once a streak threshold is crossed. A source an operator re-enabled
// after an auto-disable starts its streaks afresh and can be disabled again.
func (t *Tracker) RecordOutcome(ctx context.Context, sourceID string, out Outcome) (domain.SourceHealthState, error) {
	state, err := t.Stats(ctx, sourceID)
	if err != nil {
		return state, err
	}
	if state.DisabledBySystem {
		if state, err = t.clearIfReenabled(ctx, sourceID, state); err != nil {
			return state, err
		}
	}
	now := t.now()
	state = Apply(state, out, now, t.policy)

	disableReason := ""
	if !state.DisabledBySystem {
		disableReason = t.disableReason(state)
	}
	if disableReason != "" {
		if err := t.sources.SetSourceEnabled(ctx, sourceID, false); err != nil {
			return state, fmt.Errorf("disable source %s: %w", sourceID, err)
		}
		state.DisabledBySystem = true
		state.DisabledReason = disableReason
		t.metrics.SourceDisabled(disableReason)
		t.logger.Warn("source auto-disabled",
			"source_id", sourceID,
			"reason", disableReason,
			"consecutive_no_create", state.ConsecutiveNoCreate,
			"consecutive_rejects", state.ConsecutiveRejects,
			"total_runs", state.TotalRuns)
	}

	if err := t.store.SaveHealth(ctx, state); err != nil {
		return state, fmt.Errorf("save health %s: %w", sourceID, err)
	}
	return state, nil
}

func (t *Tracker) clearIfReenabled(ctx context.Context, sourceID string, state domain.SourceHealthState) (domain.SourceHealthState, error) {
	src, err := t.sources.GetSource(ctx, sourceID)
	if errors.Is(err, ports.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("load source %s: %w", sourceID, err)
	}
	if !src.Enabled {
		return state, nil
	}
	t.logger.Info("source re-enabled, streaks reset",
		"source_id", sourceID,
		"previous_reason", state.DisabledReason)
	state.DisabledBySystem = false
	state.DisabledReason = ""
	state.ConsecutiveNoCreate = 0
	state.ConsecutiveRejects = 0
	return state, nil
}

// Apply is the pure state transition used by RecordOutcome.
func Apply(state domain.SourceHealthState, out Outcome, at time.Time, policy Policy) domain.SourceHealthState {
	state.TotalRuns++
	switch out.Kind {
	case OutcomeCreated:
		state.TotalCreated++
		state.ConsecutiveNoCreate = 0
	case OutcomeDup:
		if policy.DuplicatesCountAsNoCreate {
			state.ConsecutiveNoCreate++
		}
	default:
		state.ConsecutiveNoCreate++
	}
	if out.Kind == OutcomeReject || out.Kind == OutcomeLow {
		state.ConsecutiveRejects++
	} else {
		state.ConsecutiveRejects = 0
	}

	state.History = append(state.History, domain.HealthEntry{
		At:         at,
		Outcome:    string(out.Kind),
		Reason:     out.Reason,
		Severity:   out.Severity,
		Confidence: out.Confidence,
	})
	if len(state.History) > historyLimit {
		state.History = append([]domain.HealthEntry(nil), state.History[len(state.History)-historyLimit:]...)
	}
	state.UpdatedAt = at
	return state
}

func (t *Tracker) disableReason(state domain.SourceHealthState) string {
	if state.TotalRuns >= t.policy.MinRunsForNoCreate && state.ConsecutiveNoCreate >= t.policy.NoCreateThreshold {
		return ReasonNoCreateStreak
	}
	if state.ConsecutiveRejects >= t.policy.RejectThreshold {
		return ReasonRejectStreak
	}
	return ""
}
