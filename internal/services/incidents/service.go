// Package incidents applies review transitions to stored incidents and hands
// reviewed incidents to the trend engine.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/ports"
	"scour/internal/services/trends"
)

var (
	ErrNotFound      = errors.New("incident not found")
	ErrInvalidStatus = errors.New("status must be approved or dismissed")
)

// TrendMatcher is the part of the trend engine the service needs.
type TrendMatcher interface {
	ProcessIncident(ctx context.Context, incidentID string) (trends.MatchResult, error)
}

type Service struct {
	incidents ports.IncidentRepository
	trends    TrendMatcher
	logger    *slog.Logger
}

func New(incidents ports.IncidentRepository, matcher TrendMatcher, logger *slog.Logger) *Service {
	return &Service{incidents: incidents, trends: matcher, logger: logging.NewComponentLogger(logger, "incidents")}
}

// Transition moves an incident to approved or dismissed and runs trend
// matching for it. Matching failures are logged; the transition stands.
func (s *Service) Transition(ctx context.Context, id string, status domain.IncidentStatus) (domain.Incident, error) {
	if !status.Terminal() {
		return domain.Incident{}, ErrInvalidStatus
	}
	inc, err := s.incidents.UpdateIncidentStatus(ctx, id, status)
	if err != nil {
		return domain.Incident{}, notFound(id, err)
	}
	return s.match(ctx, inc), nil
}

// MarkPublished flags the incident as published and runs trend matching.
func (s *Service) MarkPublished(ctx context.Context, id string) (domain.Incident, error) {
	inc, err := s.incidents.MarkIncidentPublished(ctx, id)
	if err != nil {
		return domain.Incident{}, notFound(id, err)
	}
	return s.match(ctx, inc), nil
}

func (s *Service) match(ctx context.Context, inc domain.Incident) domain.Incident {
	if s.trends == nil {
		return inc
	}
	res, err := s.trends.ProcessIncident(ctx, inc.ID)
	if err != nil {
		s.logger.Warn("trend matching failed", "incident_id", inc.ID, "error", err)
		return inc
	}
	if res.Matched {
		trendID := res.TrendID
		inc.TrendID = &trendID
	}
	return inc
}

func notFound(id string, err error) error {
	if errors.Is(err, ports.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("update incident %s: %w", id, err)
}
