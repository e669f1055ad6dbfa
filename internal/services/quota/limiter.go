// Package quota enforces per-user daily limits on the paid capabilities.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scour/internal/auth"
	"scour/internal/ports"
)

const (
	KindSearch   = "search"
	KindGenerate = "generate"
)

var ErrQuotaExceeded = errors.New("daily quota exceeded")

// Limits are per-user calls per UTC day; zero or negative means unlimited.
type Limits struct {
	Search   int64
	Generate int64
}

type Limiter struct {
	store  ports.QuotaStore
	limits Limits
	now    func() time.Time
}

func NewLimiter(store ports.QuotaStore, limits Limits) *Limiter {
	return &Limiter{store: store, limits: limits, now: func() time.Time { return time.Now().UTC() }}
}

// Allow counts one call of kind against the caller in ctx. Calls without an
// identity, and admin calls, are not counted.
func (l *Limiter) Allow(ctx context.Context, kind string) error {
	if l == nil || l.store == nil {
		return nil
	}
	id, ok := auth.FromContext(ctx)
	if !ok || id.Admin || id.UserID == "" {
		return nil
	}
	limit := l.limitFor(kind)
	if limit <= 0 {
		return nil
	}
	day := l.now().UTC().Format("2006-01-02")
	n, err := l.store.IncrementQuota(ctx, kind, day, id.UserID)
	if err != nil {
		return fmt.Errorf("quota %s: %w", kind, err)
	}
	if n > limit {
		return fmt.Errorf("%w: %s limit %d for %s", ErrQuotaExceeded, kind, limit, id.UserID)
	}
	return nil
}

func (l *Limiter) limitFor(kind string) int64 {
	switch kind {
	case KindSearch:
		return l.limits.Search
	case KindGenerate:
		return l.limits.Generate
	}
	return 0
}

// Searcher gates a search capability behind the limiter.
type Searcher struct {
	Next    ports.Searcher
	Limiter *Limiter
}

func (s Searcher) Search(ctx context.Context, q ports.SearchQuery) ([]ports.SearchResult, error) {
	if err := s.Limiter.Allow(ctx, KindSearch); err != nil {
		return nil, err
	}
	return s.Next.Search(ctx, q)
}

// Completer gates a generative capability behind the limiter.
type Completer struct {
	Next    ports.Completer
	Limiter *Limiter
}

func (c Completer) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.Limiter.Allow(ctx, KindGenerate); err != nil {
		return "", err
	}
	return c.Next.CompleteJSON(ctx, systemPrompt, userPrompt)
}
