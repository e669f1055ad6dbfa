package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/adapters/memory"
	"scour/internal/domain"
	"scour/internal/logging"
)

func newTracker(t *testing.T, policy Policy) (*Tracker, *memory.Store) {
	t.Helper()
	store := memory.New()
	_, err := store.UpsertSource(context.Background(), domain.Source{ID: "src-1", Name: "Src", Enabled: true})
	require.NoError(t, err)
	return New(store, store, policy, nil, logging.NewNop()), store
}

func TestRejectStreakDisablesSource(t *testing.T) {
	tracker, store := newTracker(t, DefaultPolicy())
	ctx := context.Background()

	var state domain.SourceHealthState
	var err error
	for i := 0; i < 6; i++ {
		kind := OutcomeLow
		if i%2 == 0 {
			kind = OutcomeReject
		}
		state, err = tracker.RecordOutcome(ctx, "src-1", Outcome{Kind: kind, Reason: "low_confidence"})
		require.NoError(t, err)
	}

	src, err := store.GetSource(ctx, "src-1")
	require.NoError(t, err)
	assert.False(t, src.Enabled)
	assert.True(t, state.DisabledBySystem)
	assert.Equal(t, ReasonRejectStreak, state.DisabledReason)
}

func TestCreatedResetsNoCreateStreak(t *testing.T) {
	policy := DefaultPolicy()
	policy.RejectThreshold = 100 // isolate the no-create path
	tracker, store := newTracker(t, policy)
	ctx := context.Background()

	kinds := []OutcomeKind{OutcomeLow, OutcomeReject, OutcomeLow, OutcomeCreated, OutcomeLow, OutcomeReject}
	var state domain.SourceHealthState
	var err error
	for _, k := range kinds {
		state, err = tracker.RecordOutcome(ctx, "src-1", Outcome{Kind: k})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, state.ConsecutiveNoCreate)
	assert.False(t, state.DisabledBySystem)

	src, _ := store.GetSource(ctx, "src-1")
	assert.True(t, src.Enabled)
}

func TestNoCreateStreakRequiresMinimumRuns(t *testing.T) {
	policy := DefaultPolicy()
	tracker, store := newTracker(t, policy)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := tracker.RecordOutcome(ctx, "src-1", Outcome{Kind: OutcomeError, Reason: "source_timeout"})
		require.NoError(t, err)
	}
	src, _ := store.GetSource(ctx, "src-1")
	assert.True(t, src.Enabled)

	state, err := tracker.RecordOutcome(ctx, "src-1", Outcome{Kind: OutcomeError, Reason: "source_timeout"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNoCreateStreak, state.DisabledReason)
	assert.Equal(t, 0, state.ConsecutiveRejects, "errors do not count as rejects")
}

func TestDuplicatePolicy(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	counting := DefaultPolicy()
	lenient := DefaultPolicy()
	lenient.DuplicatesCountAsNoCreate = false

	var a, b domain.SourceHealthState
	a = Apply(a, Outcome{Kind: OutcomeReject}, at, counting)
	a = Apply(a, Outcome{Kind: OutcomeDup}, at, counting)
	b = Apply(b, Outcome{Kind: OutcomeReject}, at, lenient)
	b = Apply(b, Outcome{Kind: OutcomeDup}, at, lenient)

	assert.Equal(t, 2, a.ConsecutiveNoCreate)
	assert.Equal(t, 1, b.ConsecutiveNoCreate)
	assert.Equal(t, 0, a.ConsecutiveRejects, "dup resets the reject streak")
	assert.Equal(t, 0, b.ConsecutiveRejects)
}

func TestHistoryIsCapped(t *testing.T) {
	var st domain.SourceHealthState
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		st = Apply(st, Outcome{Kind: OutcomeCreated, Reason: string(rune('a' + i%26))}, at.Add(time.Duration(i)*time.Minute), DefaultPolicy())
	}
	require.Len(t, st.History, historyLimit)
	assert.Equal(t, at.Add(39*time.Minute), st.History[historyLimit-1].At)
	assert.Equal(t, at.Add(10*time.Minute), st.History[0].At)
	assert.Equal(t, 40, st.TotalRuns)
}

func TestDisabledSourceIsNotDisabledTwice(t *testing.T) {
	tracker, _ := newTracker(t, DefaultPolicy())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := tracker.RecordOutcome(ctx, "src-1", Outcome{Kind: OutcomeReject})
		require.NoError(t, err)
	}
	state, err := tracker.RecordOutcome(ctx, "src-1", Outcome{Kind: OutcomeLow})
	require.NoError(t, err)
	assert.Equal(t, ReasonRejectStreak, state.DisabledReason)
	assert.Equal(t, 6, state.ConsecutiveRejects)
}

func TestReenabledSourceCanBeDisabledAgain(t *testing.T) {
	tracker, store := newTracker(t, DefaultPolicy())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := tracker.RecordOutcome(ctx, "src-1", Outcome{Kind: OutcomeReject})
		require.NoError(t, err)
	}
	src, err := store.GetSource(ctx, "src-1")
	require.NoError(t, err)
	require.False(t, src.Enabled)

	require.NoError(t, store.SetSourceEnabled(ctx, "src-1", true))
	state, err := tracker.RecordOutcome(ctx, "src-1", Outcome{Kind: OutcomeReject})
	require.NoError(t, err)
	assert.False(t, state.DisabledBySystem)
	assert.Empty(t, state.DisabledReason)
	assert.Equal(t, 1, state.ConsecutiveRejects)
	assert.Equal(t, 6, state.TotalRuns)

	for i := 0; i < 4; i++ {
		state, err = tracker.RecordOutcome(ctx, "src-1", Outcome{Kind: OutcomeReject})
		require.NoError(t, err)
	}
	assert.True(t, state.DisabledBySystem)
	assert.Equal(t, ReasonRejectStreak, state.DisabledReason)
	src, err = store.GetSource(ctx, "src-1")
	require.NoError(t, err)
	assert.False(t, src.Enabled)
}
