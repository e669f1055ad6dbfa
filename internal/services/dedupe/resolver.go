// Package dedupe folds validated incidents into existing records with the
// same country and an equivalent title.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/ports"
	"scour/internal/textutil"
)

type Resolver struct {
	incidents ports.IncidentRepository
	logger    *slog.Logger
}

func New(incidents ports.IncidentRepository, logger *slog.Logger) *Resolver {
	return &Resolver{incidents: incidents, logger: logging.NewComponentLogger(logger, "dedupe")}
}

// TitlesMatch reports whether two titles normalize to the same text or one
// contains the other on word boundaries.
func TitlesMatch(a, b string) bool {
	na, nb := textutil.NormalizeTitle(a), textutil.NormalizeTitle(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || textutil.ContainsPhrase(na, nb) || textutil.ContainsPhrase(nb, na)
}

// FindDuplicate returns the newest same-country incident created at or after
// since whose title matches, or nil.
func (r *Resolver) FindDuplicate(ctx context.Context, inc domain.Incident, since time.Time) (*domain.Incident, error) {
	candidates, err := r.incidents.ListIncidentsByCountrySince(ctx, inc.Country, since)
	if err != nil {
		return nil, fmt.Errorf("list incidents for %s: %w", inc.Country, err)
	}
	for i := range candidates {
		if candidates[i].ID == inc.ID && inc.ID != "" {
			continue
		}
		if TitlesMatch(candidates[i].Title, inc.Title) {
			found := candidates[i]
			return &found, nil
		}
	}
	return nil, nil
}

// Resolve merges inc's sources into a matching existing incident. merged is
// false when no duplicate exists and inc should be persisted.
func (r *Resolver) Resolve(ctx context.Context, inc domain.Incident, since time.Time) (*domain.Incident, bool, error) {
	existing, err := r.FindDuplicate(ctx, inc, since)
	if err != nil || existing == nil {
		return nil, false, err
	}
	updated, err := r.incidents.MergeIncidentSources(ctx, existing.ID, inc.Sources)
	if err != nil {
		return nil, false, fmt.Errorf("merge sources into %s: %w", existing.ID, err)
	}
	r.logger.Info("duplicate merged",
		"incident_id", updated.ID,
		"title", inc.Title,
		"sources", len(updated.Sources))
	return &updated, true, nil
}
