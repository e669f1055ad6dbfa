package dedupe

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

func TestTitlesMatch(t *testing.T) {
	assert.True(t, TitlesMatch("Flood in Jakarta", "Flooding in Jakarta"))
	assert.True(t, TitlesMatch("Protest, Nairobi!", "protest nairobi"))
	assert.True(t, TitlesMatch("Strike at port", "Dock workers: strike at port continues"))
	assert.False(t, TitlesMatch("Flood in Jakarta", "Fire in Jakarta"))
	assert.False(t, TitlesMatch("", "anything"))
}

func TestResolveMergesIntoExisting(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	store := memory.New(memory.WithClock(func() time.Time { return created }))
	existing := &domain.Incident{
		Title:   "Flood in Jakarta",
		Country: "Indonesia",
		Sources: []string{"https://a.example/1"},
	}
	require.NoError(t, store.CreateIncident(ctx, existing))

	r := New(store, logging.NewNop())
	since := created.AddDate(0, 0, -7)
	draft := domain.Incident{
		Title:   "Flooding in Jakarta",
		Country: "Indonesia",
		Sources: []string{"https://a.example/1", "https://b.example/2"},
	}
	got, merged, err := r.Resolve(ctx, draft, since)
	require.NoError(t, err)
	require.True(t, merged)
	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, []string{"https://a.example/1", "https://b.example/2"}, got.Sources)

	all, err := store.ListRecentIncidents(ctx, since, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolveIgnoresOtherCountriesAndOldRecords(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New(memory.WithClock(func() time.Time { return created }))
	require.NoError(t, store.CreateIncident(ctx, &domain.Incident{Title: "Flood in Jakarta", Country: "Indonesia"}))
	require.NoError(t, store.CreateIncident(ctx, &domain.Incident{Title: "Flood in Jakarta", Country: "Malaysia", CreatedAt: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)}))

	r := New(store, logging.NewNop())
	_, merged, err := r.Resolve(ctx, domain.Incident{Title: "Flood in Jakarta", Country: "Indonesia"}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, merged)
}

func TestResolveMatchesCountryAliases(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	store := memory.New(memory.WithClock(func() time.Time { return created }))
	existing := &domain.Incident{Title: "Wildfire near Los Angeles", Country: "United States"}
	require.NoError(t, store.CreateIncident(ctx, existing))

	r := New(store, logging.NewNop())
	got, merged, err := r.Resolve(ctx, domain.Incident{
		Title:   "Wildfire near Los Angeles",
		Country: "USA",
		Sources: []string{"https://c.example/3"},
	}, created.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.True(t, merged)
	assert.Equal(t, existing.ID, got.ID)
}
