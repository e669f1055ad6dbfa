// Package validator turns a generated draft into a persist-ready incident or
// a rejection with a machine-readable reason.
package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"scour/internal/domain"
	"scour/internal/geo"
	"scour/internal/textutil"
)

// Rejection reasons. Severity-floor rejections append the floor name to
// ReasonBelowFloorPrefix.
const (
	ReasonCountryMismatch  = "country_mismatch"
	ReasonMissingStartDate = "missing_eventStartDate"
	ReasonTooOldYear       = "too_old_year"
	ReasonTooOldDaysBack   = "too_old_daysBack"
	ReasonPre2025          = "event_pre_2025"
	ReasonLowConfidence    = "low_confidence"
	ReasonMissingGeo       = "missing_geo_fields"
	ReasonBelowFloorPrefix = "below_severity_floor_"
)

const (
	minConfidence   = 0.55
	minSummaryChars = 40
	minRadiusKm     = 5.0
	maxRadiusKm     = 500.0
	lastStaleYear   = 2023
)

var absoluteFloor = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Rejection is returned by Validate when a draft must not be persisted. It
// carries whatever severity and confidence were known at that point.
type Rejection struct {
	Reason     string
	Severity   domain.Severity
	Confidence float64
}

func (r *Rejection) Error() string { return "draft rejected: " + r.Reason }

type Validator struct {
	now func() time.Time
}

func New() *Validator {
	return &Validator{now: func() time.Time { return time.Now().UTC() }}
}

// NewWithClock is used by callers that need a fixed notion of today.
func NewWithClock(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// incidentCountry prefers the source's declared spelling so incidents from one
// source always compare equal however the model wrote the name.
func incidentCountry(src domain.Source, draft domain.IncidentDraft) string {
	if c := strings.TrimSpace(src.Country); c != "" {
		return c
	}
	return strings.TrimSpace(draft.Country)
}

// Validate runs the checks in order and stops at the first failure. Any
// non-nil error is a *Rejection.
func (v *Validator) Validate(draft domain.IncidentDraft, src domain.Source, evidence []domain.EvidenceItem, daysBack int) (domain.Incident, error) {
	now := v.now().UTC()
	if daysBack < 1 {
		daysBack = 1
	}
	severity := domain.ParseSeverity(string(draft.Severity))
	reject := func(reason string) (domain.Incident, error) {
		return domain.Incident{}, &Rejection{Reason: reason, Severity: severity, Confidence: draft.Confidence}
	}

	if strings.TrimSpace(src.Country) != "" && !geo.SameCountry(src.Country, draft.Country) {
		return reject(ReasonCountryMismatch)
	}

	start, ok := parseDate(draft.EventStartDate)
	if !ok {
		start, ok = InferStartDate(draft, evidence, now)
	}
	if !ok {
		return reject(ReasonMissingStartDate)
	}

	if start.Year() <= lastStaleYear {
		return reject(ReasonTooOldYear)
	}
	if start.Before(textutil.StartOfDayUTC(now).AddDate(0, 0, -daysBack)) {
		return reject(ReasonTooOldDaysBack)
	}
	if start.Before(absoluteFloor) {
		return reject(ReasonPre2025)
	}

	if !draft.OK || strings.TrimSpace(draft.Title) == "" ||
		utf8.RuneCountInString(strings.TrimSpace(draft.Summary)) < minSummaryChars ||
		len(nonEmpty(draft.Sources)) == 0 || draft.Confidence < minConfidence {
		return reject(ReasonLowConfidence)
	}

	lat, lng, radius, polygon, ok := materializeGeo(draft, severity)
	if !ok {
		return reject(ReasonMissingGeo)
	}

	end, ok := parseDate(draft.EventEndDate)
	if !ok || !end.After(start) {
		end = start.Add(DefaultDuration(severity))
	}

	sources := nonEmpty(draft.Sources)
	severity = ClampSeverity(severity, draft, sources)

	if floor := src.MinSeverityFloor; floor.Valid() && severity.Rank() < floor.Rank() {
		return reject(ReasonBelowFloorPrefix + string(floor))
	}

	return domain.Incident{
		SourceID:     src.ID,
		Title:        strings.TrimSpace(draft.Title),
		Country:      incidentCountry(src, draft),
		Location:     strings.TrimSpace(draft.Location),
		Summary:      strings.TrimSpace(draft.Summary),
		Advice:       append([]string(nil), draft.Advice...),
		Sources:      sources,
		Severity:     severity,
		EventType:    draft.EventType,
		GeoScope:     draft.GeoScope,
		Lat:          &lat,
		Lng:          &lng,
		RadiusKm:     &radius,
		GeoJSON:      polygon,
		EventStartAt: start,
		EventEndAt:   end,
		Status:       domain.IncidentDraftStatus,
		AIConfidence: draft.Confidence,
		AIReason:     draft.Reason,
	}, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// InferStartDate resolves a start date from evidence recency signals: a
// recency hint on the cited evidence, then a date in an evidence URL, then
// today when any evidence exists.
func InferStartDate(draft domain.IncidentDraft, evidence []domain.EvidenceItem, now time.Time) (time.Time, bool) {
	ordered := citedFirst(draft.Sources, evidence)
	for _, e := range ordered {
		if t, ok := textutil.ParseRecencyHint(e.RecencyHint, now); ok {
			return textutil.StartOfDayUTC(t), true
		}
	}
	for _, e := range ordered {
		if t, ok := textutil.DateFromURL(e.URL); ok {
			return t, true
		}
	}
	if len(evidence) > 0 {
		return textutil.StartOfDayUTC(now), true
	}
	return time.Time{}, false
}

func citedFirst(sources []string, evidence []domain.EvidenceItem) []domain.EvidenceItem {
	cited := make(map[string]bool, len(sources))
	for _, s := range sources {
		cited[strings.TrimSpace(s)] = true
	}
	out := make([]domain.EvidenceItem, 0, len(evidence))
	for _, e := range evidence {
		if cited[e.URL] {
			out = append(out, e)
		}
	}
	for _, e := range evidence {
		if !cited[e.URL] {
			out = append(out, e)
		}
	}
	return out
}

func materializeGeo(draft domain.IncidentDraft, severity domain.Severity) (lat, lng, radius float64, polygon json.RawMessage, ok bool) {
	if draft.Lat == nil || draft.Lng == nil {
		return 0, 0, 0, nil, false
	}
	lat, lng = *draft.Lat, *draft.Lng
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, 0, nil, false
	}
	if draft.RadiusKm != nil && *draft.RadiusKm > 0 {
		radius = clampRadius(*draft.RadiusKm)
	} else {
		radius = DefaultRadiusKm(severity, draft.GeoScope, draft.EventType)
	}
	if geo.ValidPolygon(draft.GeoJSON) {
		return lat, lng, radius, append(json.RawMessage(nil), draft.GeoJSON...), true
	}
	polygon, err := geo.CirclePolygon(lat, lng, radius)
	if err != nil {
		return 0, 0, 0, nil, false
	}
	return lat, lng, radius, polygon, true
}

var baseRadiusKm = map[domain.Severity]float64{
	domain.SeverityCritical:    150,
	domain.SeverityWarning:     75,
	domain.SeverityCaution:     40,
	domain.SeverityInformative: 20,
}

var scopeMultiplier = map[string]float64{
	"multinational": 3,
	"national":      2,
	"regional":      1.5,
	"city":          1,
	"local":         1,
}

var weatherKeywords = []string{"weather", "storm", "hurricane", "typhoon", "cyclone", "flood", "tornado", "blizzard", "snow", "heat", "rain", "wildfire"}
var unrestKeywords = []string{"protest", "riot", "unrest", "demonstration", "strike", "civil"}

// DefaultRadiusKm derives the affected radius from severity, geographic scope
// and event type, clamped to [5, 500] km.
func DefaultRadiusKm(severity domain.Severity, scope, eventType string) float64 {
	r, ok := baseRadiusKm[severity]
	if !ok {
		r = baseRadiusKm[domain.SeverityInformative]
	}
	if m, ok := scopeMultiplier[strings.ToLower(strings.TrimSpace(scope))]; ok {
		r *= m
	}
	et := strings.ToLower(eventType)
	switch {
	case containsAny(et, weatherKeywords):
		r *= 1.3
	case containsAny(et, unrestKeywords):
		r *= 0.9
	}
	return clampRadius(r)
}

func clampRadius(r float64) float64 {
	return math.Max(minRadiusKm, math.Min(maxRadiusKm, r))
}

// DefaultDuration is the event window used when the draft has no usable end.
func DefaultDuration(severity domain.Severity) time.Duration {
	switch severity {
	case domain.SeverityCritical:
		return 72 * time.Hour
	case domain.SeverityWarning:
		return 48 * time.Hour
	case domain.SeverityCaution:
		return 36 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func nonEmpty(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s (severity=%s confidence=%.2f)", r.Reason, r.Severity, r.Confidence)
}
