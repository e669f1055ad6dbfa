// Package trends attaches reviewed incidents to evolving trends and infers new
// trends from incidents that match none.
package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"scour/internal/domain"
	"scour/internal/geo"
	"scour/internal/llmjson"
	"scour/internal/logging"
	"scour/internal/metrics"
	"scour/internal/ports"
)

const (
	maxMatchCandidates = 5
	maxGroupingBatch   = 20
	unmatchedLookback  = 30 * 24 * time.Hour
)

type Config struct {
	LLMTimeout time.Duration
}

type Engine struct {
	incidents ports.IncidentRepository
	trends    ports.TrendRepository
	llm       ports.Completer
	publisher ports.EventPublisher
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func New(incidents ports.IncidentRepository, trends ports.TrendRepository, llm ports.Completer, publisher ports.EventPublisher, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 20 * time.Second
	}
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	return &Engine{
		incidents: incidents,
		trends:    trends,
		llm:       llm,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		logger:    logging.NewComponentLogger(logger, "trends"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// MatchResult reports what ProcessIncident did.
type MatchResult struct {
	Matched bool   `json:"matched"`
	TrendID string `json:"trendId,omitempty"`
}

type matchAnswer struct {
	Match  *bool  `json:"match"`
	Reason string `json:"reason"`
}

// MatchToTrend returns the first open trend the incident belongs to, or nil.
// Trends failing the geographic pre-check are never sent to the model.
func (e *Engine) MatchToTrend(ctx context.Context, inc domain.Incident, open []domain.Trend) (*domain.Trend, error) {
	var candidates []domain.Trend
	for _, tr := range open {
		if PreCheck(inc, tr) {
			candidates = append(candidates, tr)
		} else {
			e.metrics.TrendMatch("precheck_rejected")
		}
	}
	if len(candidates) > maxMatchCandidates {
		candidates = candidates[:maxMatchCandidates]
	}
	for i := range candidates {
		tr := candidates[i]
		ok, reason, err := e.askMatch(ctx, inc, tr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.metrics.TrendMatch("llm_error")
			e.logger.Warn("trend match call failed", "incident_id", inc.ID, "trend_id", tr.ID, "error", err)
			continue
		}
		if ok {
			e.metrics.TrendMatch("matched")
			e.logger.Info("incident matched trend", "incident_id", inc.ID, "trend_id", tr.ID, "reason", reason)
			return &tr, nil
		}
		e.metrics.TrendMatch("no_match")
	}
	return nil, nil
}

func (e *Engine) askMatch(ctx context.Context, inc domain.Incident, tr domain.Trend) (bool, string, error) {
	system := `You decide whether a new safety incident belongs to an existing trend: an evolving group of related incidents
with geographic and event-type continuity. Geography has already been checked. Answer with JSON {"match": bool, "reason": string}.
Match only when the incident is clearly part of the same underlying situation.`
	payload := map[string]any{
		"incident": map[string]any{
			"title":     inc.Title,
			"country":   inc.Country,
			"location":  inc.Location,
			"eventType": inc.EventType,
			"severity":  inc.Severity,
			"summary":   inc.Summary,
		},
		"trend": map[string]any{
			"title":       tr.Title,
			"countries":   trendCountries(tr),
			"eventType":   tr.EventType,
			"description": tr.Description,
			"incidents":   tr.IncidentCount,
		},
	}
	user, err := json.Marshal(payload)
	if err != nil {
		return false, "", err
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()
	content, err := e.llm.CompleteJSON(ctx, system, string(user))
	if err != nil {
		return false, "", err
	}
	var ans matchAnswer
	if err := llmjson.Decode(content, &ans); err != nil {
		return false, "", err
	}
	if ans.Match == nil {
		return false, "", errors.New("match answer missing match field")
	}
	return *ans.Match, ans.Reason, nil
}

// ProcessIncident tries to attach the incident to an active trend. An
// incident already linked to a trend is reported as matched without work.
func (e *Engine) ProcessIncident(ctx context.Context, incidentID string) (MatchResult, error) {
	inc, err := e.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return MatchResult{}, fmt.Errorf("load incident %s: %w", incidentID, err)
	}
	if inc.TrendID != nil {
		return MatchResult{Matched: true, TrendID: *inc.TrendID}, nil
	}
	open, err := e.trends.ListActiveTrends(ctx)
	if err != nil {
		return MatchResult{}, fmt.Errorf("list trends: %w", err)
	}
	tr, err := e.MatchToTrend(ctx, inc, open)
	if err != nil {
		return MatchResult{}, err
	}
	if tr == nil {
		return MatchResult{}, nil
	}
	if err := e.attach(ctx, tr, inc); err != nil {
		return MatchResult{}, err
	}
	return MatchResult{Matched: true, TrendID: tr.ID}, nil
}

func (e *Engine) attach(ctx context.Context, tr *domain.Trend, inc domain.Incident) error {
	if !containsString(tr.AlertIDs, inc.ID) {
		tr.AlertIDs = append(tr.AlertIDs, inc.ID)
	}
	tr.IncidentCount = len(tr.AlertIDs)
	tr.Severity = domain.MaxSeverity(tr.Severity, inc.Severity)
	tr.LastSeen = e.now()
	if !containsCountry(trendCountries(*tr), inc.Country) {
		tr.Countries = append(tr.Countries, inc.Country)
	}
	if err := e.trends.UpdateTrend(ctx, *tr); err != nil {
		return fmt.Errorf("update trend %s: %w", tr.ID, err)
	}
	if err := e.incidents.SetIncidentTrend(ctx, inc.ID, tr.ID); err != nil {
		return fmt.Errorf("link incident %s: %w", inc.ID, err)
	}
	return nil
}

type proposal struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	PredictiveAnalysis string   `json:"predictiveAnalysis"`
	EventType          string   `json:"eventType"`
	IncidentIDs        []string `json:"incidentIds"`
}

type groupingAnswer struct {
	Trends []proposal `json:"trends"`
}

// CreateTrendsFromUnmatched groups recent reviewed incidents that have no
// trend. Every proposed group is re-verified member by member before it is
// persisted.
func (e *Engine) CreateTrendsFromUnmatched(ctx context.Context) ([]domain.Trend, error) {
	now := e.now()
	pending, err := e.incidents.ListUnmatchedIncidents(ctx, now.Add(-unmatchedLookback), maxGroupingBatch)
	if err != nil {
		return nil, fmt.Errorf("list unmatched incidents: %w", err)
	}
	if len(pending) < 2 {
		return []domain.Trend{}, nil
	}
	proposals, err := e.askGrouping(ctx, pending)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Incident, len(pending))
	for _, inc := range pending {
		byID[inc.ID] = inc
	}
	used := map[string]bool{}
	created := []domain.Trend{}
	for _, p := range proposals {
		members := resolveMembers(p.IncidentIDs, byID, used)
		if reason := verifyGroup(p, members); reason != "" {
			e.logger.Info("trend proposal rejected", "title", p.Title, "reason", reason, "members", len(members))
			continue
		}
		tr := buildTrend(p, members, now)
		if err := e.trends.CreateTrend(ctx, &tr); err != nil {
			return created, fmt.Errorf("create trend: %w", err)
		}
		for _, m := range members {
			used[m.ID] = true
			if err := e.incidents.SetIncidentTrend(ctx, m.ID, tr.ID); err != nil {
				return created, fmt.Errorf("link incident %s: %w", m.ID, err)
			}
		}
		if err := e.publisher.PublishTrendCreated(ctx, tr); err != nil {
			e.logger.Warn("publish trend failed", "trend_id", tr.ID, "error", err)
		}
		created = append(created, tr)
	}
	e.metrics.TrendsCreated(len(created))
	e.logger.Info("trend batch finished", "candidates", len(pending), "proposals", len(proposals), "created", len(created))
	return created, nil
}

func (e *Engine) askGrouping(ctx context.Context, pending []domain.Incident) ([]proposal, error) {
	system := `You group related safety incidents into trends. Rules:
- A trend needs at least 2 incidents and a specific, descriptive title (never "Trend 1", "Various incidents" or similar).
- Incidents in different countries may share a trend only for weather, natural disasters, epidemics or migration,
  and only when the countries are neighbours or on the same continent.
- Local crime (robbery, theft, assault and similar) never groups across countries.
- Leave incidents that fit no group out.
Answer with JSON {"trends":[{"title":string,"description":string,"predictiveAnalysis":string,"eventType":string,"incidentIds":[string]}]}.`
	type row struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Country   string `json:"country"`
		Location  string `json:"location,omitempty"`
		EventType string `json:"eventType,omitempty"`
		Severity  string `json:"severity"`
		Start     string `json:"start,omitempty"`
	}
	rows := make([]row, 0, len(pending))
	for _, inc := range pending {
		r := row{ID: inc.ID, Title: inc.Title, Country: inc.Country, Location: inc.Location, EventType: inc.EventType, Severity: string(inc.Severity)}
		if !inc.EventStartAt.IsZero() {
			r.Start = inc.EventStartAt.Format("2006-01-02")
		}
		rows = append(rows, r)
	}
	user, err := json.Marshal(map[string]any{"incidents": rows})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()
	content, err := e.llm.CompleteJSON(ctx, system, string(user))
	if err != nil {
		return nil, fmt.Errorf("trend grouping: %w", err)
	}
	var ans groupingAnswer
	if err := llmjson.Decode(content, &ans); err != nil {
		return nil, fmt.Errorf("trend grouping: %w", err)
	}
	return ans.Trends, nil
}

func resolveMembers(ids []string, byID map[string]domain.Incident, used map[string]bool) []domain.Incident {
	seen := map[string]bool{}
	var out []domain.Incident
	for _, id := range ids {
		id = strings.TrimSpace(id)
		inc, ok := byID[id]
		if !ok || seen[id] || used[id] {
			continue
		}
		seen[id] = true
		out = append(out, inc)
	}
	return out
}

// verifyGroup returns a rejection reason, or "" when the group may be
// persisted.
func verifyGroup(p proposal, members []domain.Incident) string {
	if len(members) < 2 {
		return "too_few_members"
	}
	if IsPlaceholderTitle(p.Title) {
		return "placeholder_title"
	}
	if continent := geo.ContinentNamed(p.Title); continent != "" {
		for _, m := range members {
			if geo.ContinentOf(m.Country) != continent {
				return "continent_mismatch"
			}
		}
	}
	// Members are classified by their own event types; the proposal's label
	// never widens the rule.
	for i := range members {
		for j := i + 1; j < len(members); j++ {
			a, b := members[i], members[j]
			if !CanGroupCountriesForTrend(a.Country, b.Country, incidentEventText(a)) ||
				!CanGroupCountriesForTrend(a.Country, b.Country, incidentEventText(b)) {
				return "geography"
			}
		}
	}
	return ""
}

func buildTrend(p proposal, members []domain.Incident, now time.Time) domain.Trend {
	counts := map[string]int{}
	var countries []string
	severity := domain.SeverityInformative
	first := now
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
		severity = domain.MaxSeverity(severity, m.Severity)
		if !m.CreatedAt.IsZero() && m.CreatedAt.Before(first) {
			first = m.CreatedAt
		}
		if counts[geo.CanonicalCountry(m.Country)] == 0 {
			countries = append(countries, m.Country)
		}
		counts[geo.CanonicalCountry(m.Country)]++
	}
	primary := countries[0]
	for _, c := range countries {
		if counts[geo.CanonicalCountry(c)] > counts[geo.CanonicalCountry(primary)] {
			primary = c
		}
	}
	sort.Strings(countries)
	return domain.Trend{
		Title:              strings.TrimSpace(p.Title),
		Country:            primary,
		Countries:          countries,
		EventType:          strings.TrimSpace(p.EventType),
		Severity:           severity,
		Description:        strings.TrimSpace(p.Description),
		PredictiveAnalysis: strings.TrimSpace(p.PredictiveAnalysis),
		AlertIDs:           ids,
		IncidentCount:      len(ids),
		Status:             domain.TrendOpen,
		FirstSeen:          first,
		LastSeen:           now,
		AutoGenerated:      true,
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsCountry(list []string, country string) bool {
	for _, c := range list {
		if geo.SameCountry(c, country) {
			return true
		}
	}
	return false
}
