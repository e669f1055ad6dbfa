package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/adapters/memory"
	"scour/internal/auth"
	"scour/internal/ports"
)

type countingSearcher struct{ calls int }

func (c *countingSearcher) Search(context.Context, ports.SearchQuery) ([]ports.SearchResult, error) {
	c.calls++
	return nil, nil
}

func TestSearcherEnforcesDailyLimit(t *testing.T) {
	next := &countingSearcher{}
	s := Searcher{Next: next, Limiter: NewLimiter(memory.New(), Limits{Search: 2})}
	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "alice"})

	_, err := s.Search(ctx, ports.SearchQuery{Query: "a"})
	require.NoError(t, err)
	_, err = s.Search(ctx, ports.SearchQuery{Query: "b"})
	require.NoError(t, err)
	_, err = s.Search(ctx, ports.SearchQuery{Query: "c"})
	assert.True(t, errors.Is(err, ErrQuotaExceeded))
	assert.Equal(t, 2, next.calls)

	other := auth.WithIdentity(context.Background(), auth.Identity{UserID: "bob"})
	_, err = s.Search(other, ports.SearchQuery{Query: "d"})
	assert.NoError(t, err)
}

func TestAdminAndSystemBypass(t *testing.T) {
	l := NewLimiter(memory.New(), Limits{Search: 1, Generate: 1})
	admin := auth.WithIdentity(context.Background(), auth.Identity{UserID: "admin", Admin: true})
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(admin, KindGenerate))
		require.NoError(t, l.Allow(context.Background(), KindGenerate))
	}
}

func TestUnlimitedWhenZero(t *testing.T) {
	l := NewLimiter(memory.New(), Limits{})
	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "alice"})
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(ctx, KindSearch))
	}
}
