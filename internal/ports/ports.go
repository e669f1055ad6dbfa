package ports

import (
	"context"

	"scour/internal/domain"
)

type Freshness string

const (
	FreshnessDay   Freshness = "day"
	FreshnessWeek  Freshness = "week"
	FreshnessMonth Freshness = "month"
)

type SearchQuery struct {
	Query     string
	Freshness Freshness
	Count     int
}

type SearchResult struct {
	URL         string
	Title       string
	Description string
	// Age is the vendor's recency hint, e.g. "3 days ago" or an ISO date.
	Age string
}

// Searcher is the web-search capability.
type Searcher interface {
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)
}

// PageText is the readable text of a fetched page.
type PageText struct {
	URL   string
	Title string
	Text  string
}

// Fetcher fetches a URL and returns its readable text.
type Fetcher interface {
	FetchText(ctx context.Context, rawurl string) (PageText, error)
}

// FeedReader reads RSS/Atom feeds into evidence items.
type FeedReader interface {
	ReadFeed(ctx context.Context, rawurl string) ([]domain.EvidenceItem, error)
}

// Completer is the generative capability. It returns the raw JSON payload
// produced for the prompts.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// EventPublisher notifies downstream consumers (bots, publishers).
type EventPublisher interface {
	PublishIncidentCreated(ctx context.Context, inc domain.Incident) error
	PublishTrendCreated(ctx context.Context, tr domain.Trend) error
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) PublishIncidentCreated(context.Context, domain.Incident) error { return nil }
func (NopPublisher) PublishTrendCreated(context.Context, domain.Trend) error       { return nil }
