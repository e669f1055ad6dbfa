package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/config"
	"scour/internal/domain"
	"scour/internal/logging"
)

func TestBuildMemoryApp(t *testing.T) {
	var cfg config.Config
	cfg.Store = "memory"
	cfg.Scour.CallBudget = 5 * time.Minute
	cfg.Scour.BatchSize = 4

	a, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.Store.SupportsGeoColumns())

	job, err := a.Jobs.CreateJob(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)

	opts := AdvanceOptions(cfg)
	assert.Equal(t, 85*time.Second, opts.TimeBudget)
	assert.Equal(t, 4, opts.BatchSize)
	assert.Equal(t, 30*time.Second, opts.SourceTimeout)
}

func TestBuildRejectsUnknownStore(t *testing.T) {
	var cfg config.Config
	cfg.Store = "sqlite"
	_, err := Build(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}
