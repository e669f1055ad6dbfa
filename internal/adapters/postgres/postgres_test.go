package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/domain"
)

// Integration tests run against a scratch database named by
// SCOUR_TEST_DATABASE_URL and are skipped otherwise.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("SCOUR_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SCOUR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, db.DetectSchema(ctx))
	return db
}

func TestIncidentRoundTripAndMerge(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.True(t, db.SupportsGeoColumns())

	lat, lng, radius := -1.28, 36.81, 75.0
	inc := domain.Incident{
		Title:        "Protest closes Moi Avenue",
		Country:      "Kenya",
		Sources:      []string{"https://a.example/1"},
		Severity:     domain.SeverityWarning,
		Lat:          &lat,
		Lng:          &lng,
		RadiusKm:     &radius,
		GeoJSON:      []byte(`{"type":"Polygon","coordinates":[]}`),
		EventStartAt: time.Now().UTC().Truncate(time.Second),
		EventEndAt:   time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second),
	}
	require.NoError(t, db.CreateIncident(ctx, &inc))

	got, err := db.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.True(t, got.HasGeo())
	assert.Equal(t, domain.IncidentDraftStatus, got.Status)

	merged, err := db.MergeIncidentSources(ctx, inc.ID, []string{"https://a.example/1", "https://b.example/2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/1", "https://b.example/2"}, merged.Sources)

	_, err = db.GetIncident(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobLockIsExclusive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := uuid.NewString()

	unlock, ok, err := db.TryLockJob(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = db.TryLockJob(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	unlock2, ok, err := db.TryLockJob(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	unlock2()
}

func TestQuotaCounter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user := uuid.NewString()
	for want := int64(1); want <= 3; want++ {
		n, err := db.IncrementQuota(ctx, "search", "2026-03-10", user)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}
