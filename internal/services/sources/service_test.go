package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/adapters/memory"
	"scour/internal/domain"
	"scour/internal/logging"
)

func TestNormalizeDerivesStableID(t *testing.T) {
	src, err := Normalize(Spec{Name: "US Embassy Kenya", URL: "https://ke.usembassy.gov/news-events/", Country: "Kenya"})
	require.NoError(t, err)
	assert.Equal(t, "ke-usembassy-gov-news-events", src.ID)
	assert.Equal(t, domain.SourceTypeWeb, src.Type)
	assert.Equal(t, domain.SeverityInformative, src.MinSeverityFloor)
	assert.True(t, src.Enabled)

	src, err = Normalize(Spec{Name: "BBC Africa", URL: "https://www.bbc.co.uk/news/world/africa", Type: "RSS", MinSeverityFloor: "Caution"})
	require.NoError(t, err)
	assert.Equal(t, "bbc-co-uk-news-world-africa", src.ID)
	assert.Equal(t, domain.SourceTypeRSS, src.Type)
	assert.Equal(t, domain.SeverityCaution, src.MinSeverityFloor)
}

func TestNormalizeRejects(t *testing.T) {
	for _, spec := range []Spec{
		{URL: "https://example.com"},
		{Name: "x", URL: "ftp://example.com"},
		{Name: "x", URL: "https://example.com", Type: "telegram"},
		{Name: "x", URL: "https://example.com", MinSeverityFloor: "severe"},
	} {
		_, err := Normalize(spec)
		assert.ErrorIs(t, err, ErrInvalidSpec)
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	store := memory.New()
	svc := New(store, logging.NewNop())
	ctx := context.Background()

	_, err := svc.Import(ctx, []Spec{{Name: "ok", URL: "https://example.com"}, {Name: "bad"}})
	require.Error(t, err)
	enabled, err := store.ListEnabledSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	off := false
	saved, err := svc.Import(ctx, []Spec{
		{Name: "Example", URL: "https://example.com"},
		{ID: "muted", Name: "Muted", URL: "https://muted.example.org", Enabled: &off},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	enabled, err = store.ListEnabledSources(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "example-com", enabled[0].ID)
}
