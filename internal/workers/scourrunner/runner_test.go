package scourrunner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/adapters/memory"
	"scour/internal/auth"
	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/services/health"
	"scour/internal/services/scour"
)

type countingRunner struct {
	mu       sync.Mutex
	calls    map[string]int
	identity []auth.Identity
}

func (c *countingRunner) RunSourceByID(ctx context.Context, id string, _ time.Duration, _ int) scour.SourceResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[id]++
	ident, _ := auth.FromContext(ctx)
	c.identity = append(c.identity, ident)
	return scour.SourceResult{SourceID: id, Outcome: health.OutcomeCreated}
}

func setup(t *testing.T, sources int) (*memory.Store, *scour.Manager, *countingRunner) {
	t.Helper()
	store := memory.New()
	for i := 0; i < sources; i++ {
		_, err := store.UpsertSource(context.Background(), domain.Source{ID: fmt.Sprintf("s%02d", i), Enabled: true})
		require.NoError(t, err)
	}
	runner := &countingRunner{calls: map[string]int{}}
	return store, scour.NewManager(store, store, store, runner, nil, logging.NewNop()), runner
}

func TestRunDrainsRunningJobsAsSystem(t *testing.T) {
	store, mgr, runner := setup(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := mgr.CreateJob(ctx, []string{"s00", "s01", "s02"}, 0)
	require.NoError(t, err)
	b, err := mgr.CreateJob(ctx, []string{"s03", "s04"}, 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		Run(ctx, store, mgr, scour.AdvanceOptions{BatchSize: 1, TimeBudget: time.Nanosecond}, 2, 5*time.Millisecond, logging.NewNop())
		close(done)
	}()

	require.Eventually(t, func() bool {
		ja, _ := store.GetJob(ctx, a.ID)
		jb, _ := store.GetJob(ctx, b.ID)
		return ja.Status == domain.JobDone && jb.Status == domain.JobDone
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	runner.mu.Lock()
	defer runner.mu.Unlock()
	for _, id := range []string{"s00", "s01", "s02", "s03", "s04"} {
		assert.Equal(t, 1, runner.calls[id], id)
	}
	for _, ident := range runner.identity {
		assert.True(t, ident.Admin)
	}
}

func TestDrainReportsEveryCall(t *testing.T) {
	_, mgr, runner := setup(t, 4)
	ctx := context.Background()
	job, err := mgr.CreateJob(ctx, nil, 0)
	require.NoError(t, err)

	var reports []int
	p, err := Drain(ctx, mgr, job.ID, scour.AdvanceOptions{BatchSize: 1, TimeBudget: time.Nanosecond}, func(p scour.Progress) {
		reports = append(reports, p.Job.NextIndex)
	})
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, []int{1, 2, 3, 4}, reports)
	assert.Len(t, runner.calls, 4)
}

type fakeCreator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCreator) CreateTrendsFromUnmatched(context.Context) ([]domain.Trend, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil, nil
}

func TestScheduleTrends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	creator := &fakeCreator{}
	c, err := ScheduleTrends(ctx, "@every 1s", creator, logging.NewNop())
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)

	_, err = ScheduleTrends(ctx, "not a schedule", creator, logging.NewNop())
	assert.Error(t, err)

	c, err = ScheduleTrends(ctx, "", creator, logging.NewNop())
	require.NoError(t, err)
	assert.Empty(t, c.Entries())
}
