package ports

import (
	"context"
	"time"

	"scour/internal/domain"
)

// SourceRepository stores operator-owned sources. The core never hard-deletes.
type SourceRepository interface {
	GetSource(ctx context.Context, id string) (domain.Source, error)
	ListEnabledSources(ctx context.Context) ([]domain.Source, error)
	SetSourceEnabled(ctx context.Context, id string, enabled bool) error
	UpsertSource(ctx context.Context, src domain.Source) (domain.Source, error)
}

// IncidentRepository persists validated incidents.
type IncidentRepository interface {
	CreateIncident(ctx context.Context, inc *domain.Incident) error
	GetIncident(ctx context.Context, id string) (domain.Incident, error)
	// ListIncidentsByCountrySince returns incidents for country created at or after since.
	ListIncidentsByCountrySince(ctx context.Context, country string, since time.Time) ([]domain.Incident, error)
	ListRecentIncidents(ctx context.Context, since time.Time, limit int) ([]domain.Incident, error)
	// ListUnmatchedIncidents returns reviewed or published incidents without a trend.
	ListUnmatchedIncidents(ctx context.Context, since time.Time, limit int) ([]domain.Incident, error)
	MergeIncidentSources(ctx context.Context, id string, urls []string) (domain.Incident, error)
	UpdateIncidentStatus(ctx context.Context, id string, status domain.IncidentStatus) (domain.Incident, error)
	MarkIncidentPublished(ctx context.Context, id string) (domain.Incident, error)
	SetIncidentTrend(ctx context.Context, id, trendID string) error
}

// TrendRepository persists trends.
type TrendRepository interface {
	GetTrend(ctx context.Context, id string) (domain.Trend, error)
	// ListActiveTrends returns trends in open or monitoring status.
	ListActiveTrends(ctx context.Context) ([]domain.Trend, error)
	CreateTrend(ctx context.Context, tr *domain.Trend) error
	UpdateTrend(ctx context.Context, tr domain.Trend) error
}

// HealthStore keeps per-source health state across invocations.
type HealthStore interface {
	GetHealth(ctx context.Context, sourceID string) (state domain.SourceHealthState, found bool, err error)
	SaveHealth(ctx context.Context, state domain.SourceHealthState) error
}

// QuotaStore increments the usage counter keyed by (kind, day, user) and
// returns the value after the increment.
type QuotaStore interface {
	IncrementQuota(ctx context.Context, kind, day, userID string) (int64, error)
}

// SchemaCapabilities is decided once at startup by the store.
type SchemaCapabilities interface {
	SupportsGeoColumns() bool
}

var ErrNotFound = errString("not found")

type errString string

func (e errString) Error() string { return string(e) }
