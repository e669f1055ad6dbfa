// Package sources imports and normalizes operator-owned scour sources.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/ports"
)

// Spec is one source as written in an import file or request body.
type Spec struct {
	ID               string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name             string   `json:"name" yaml:"name"`
	URL              string   `json:"url" yaml:"url"`
	Country          string   `json:"country,omitempty" yaml:"country,omitempty"`
	Topics           []string `json:"topics,omitempty" yaml:"topics,omitempty"`
	Type             string   `json:"type,omitempty" yaml:"type,omitempty"`
	Enabled          *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MinSeverityFloor string   `json:"minSeverityFloor,omitempty" yaml:"minSeverityFloor,omitempty"`
}

var ErrInvalidSpec = errors.New("invalid source")

type Service struct {
	repo   ports.SourceRepository
	logger *slog.Logger
}

func New(repo ports.SourceRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logging.NewComponentLogger(logger, "sources")}
}

// Import validates every spec before writing any, then upserts them in order.
func (s *Service) Import(ctx context.Context, specs []Spec) ([]domain.Source, error) {
	normalized := make([]domain.Source, 0, len(specs))
	for i, spec := range specs {
		src, err := Normalize(spec)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		normalized = append(normalized, src)
	}
	out := make([]domain.Source, 0, len(normalized))
	for _, src := range normalized {
		saved, err := s.repo.UpsertSource(ctx, src)
		if err != nil {
			return out, fmt.Errorf("save source %s: %w", src.ID, err)
		}
		out = append(out, saved)
	}
	s.logger.Info("sources imported", "count", len(out))
	return out, nil
}

// Normalize turns a spec into a source. Without an explicit id the source is
// keyed by its registrable domain plus path, so re-importing the same URL
// updates rather than duplicates.
func Normalize(spec Spec) (domain.Source, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return domain.Source{}, fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	u, err := url.Parse(strings.TrimSpace(spec.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return domain.Source{}, fmt.Errorf("%w: %q is not an http(s) url", ErrInvalidSpec, spec.URL)
	}
	typ := domain.SourceType(strings.ToLower(strings.TrimSpace(spec.Type)))
	switch typ {
	case "":
		typ = domain.SourceTypeWeb
	case domain.SourceTypeWeb, domain.SourceTypeSearch, domain.SourceTypeRSS:
	default:
		return domain.Source{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSpec, spec.Type)
	}
	floor := domain.SeverityInformative
	if spec.MinSeverityFloor != "" {
		floor = domain.Severity(strings.ToLower(strings.TrimSpace(spec.MinSeverityFloor)))
		if !floor.Valid() {
			return domain.Source{}, fmt.Errorf("%w: unknown severity floor %q", ErrInvalidSpec, spec.MinSeverityFloor)
		}
	}
	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = derivedID(u)
	}
	var topics []string
	for _, t := range spec.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return domain.Source{
		ID:               id,
		Name:             name,
		URL:              u.String(),
		Country:          strings.TrimSpace(spec.Country),
		Topics:           topics,
		Type:             typ,
		Enabled:          enabled,
		MinSeverityFloor: floor,
	}, nil
}

func derivedID(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}
	sub := strings.TrimSuffix(strings.TrimSuffix(host, registrable), ".")
	sub = strings.TrimPrefix(sub, "www")
	sub = strings.TrimPrefix(sub, ".")
	parts := []string{}
	if sub != "" {
		parts = append(parts, sub)
	}
	parts = append(parts, registrable)
	if p := strings.Trim(u.Path, "/"); p != "" {
		parts = append(parts, p)
	}
	id := strings.Join(parts, "-")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, id)
}
