package incidents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/adapters/memory"
	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/services/trends"
)

type recordingMatcher struct {
	calls  []string
	result trends.MatchResult
	err    error
}

func (m *recordingMatcher) ProcessIncident(_ context.Context, id string) (trends.MatchResult, error) {
	m.calls = append(m.calls, id)
	return m.result, m.err
}

func seed(t *testing.T) (*memory.Store, domain.Incident) {
	t.Helper()
	store := memory.New()
	inc := domain.Incident{Title: "Flooding in Mombasa", Country: "Kenya", Severity: domain.SeverityCaution}
	require.NoError(t, store.CreateIncident(context.Background(), &inc))
	return store, inc
}

func TestTransitionRunsMatching(t *testing.T) {
	store, inc := seed(t)
	matcher := &recordingMatcher{result: trends.MatchResult{Matched: true, TrendID: "t1"}}
	svc := New(store, matcher, logging.NewNop())

	got, err := svc.Transition(context.Background(), inc.ID, domain.IncidentApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentApproved, got.Status)
	require.NotNil(t, got.TrendID)
	assert.Equal(t, "t1", *got.TrendID)
	assert.Equal(t, []string{inc.ID}, matcher.calls)
}

func TestTransitionRejectsDraftStatus(t *testing.T) {
	store, inc := seed(t)
	matcher := &recordingMatcher{}
	svc := New(store, matcher, logging.NewNop())

	_, err := svc.Transition(context.Background(), inc.ID, domain.IncidentDraftStatus)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, matcher.calls)
}

func TestMatchingFailureKeepsTransition(t *testing.T) {
	store, inc := seed(t)
	svc := New(store, &recordingMatcher{err: errors.New("model down")}, logging.NewNop())

	got, err := svc.MarkPublished(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.True(t, got.Published)
	assert.Nil(t, got.TrendID)

	_, err = svc.MarkPublished(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
