// Package drafts asks the generative capability for a structured incident
// draft and decodes the answer strictly.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scour/internal/domain"
	"scour/internal/llmjson"
	"scour/internal/logging"
	"scour/internal/ports"
	"scour/internal/textutil"
)

const (
	maxEvidence        = 6
	maxEvidenceChars   = 1200
	maxRecentIncidents = 30
)

// RecentIncident is shown to the model so it can avoid recreating it.
type RecentIncident struct {
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
	Country  string `json:"country,omitempty"`
}

type Input struct {
	Evidence        []domain.EvidenceItem
	SourceHint      string
	CountryHint     string
	DaysBack        int
	RecentIncidents []RecentIncident
}

type Generator struct {
	llm     ports.Completer
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func New(llm ports.Completer, timeout time.Duration, logger *slog.Logger) *Generator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Generator{
		llm:     llm,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "drafts"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Generate runs one bounded generation call. The error is non-nil only when
// the capability itself failed; every answer it returns maps to a Result.
func (g *Generator) Generate(ctx context.Context, in Input) (Result, error) {
	if len(in.Evidence) > maxEvidence {
		in.Evidence = in.Evidence[:maxEvidence]
	}
	if len(in.RecentIncidents) > maxRecentIncidents {
		in.RecentIncidents = in.RecentIncidents[:maxRecentIncidents]
	}
	userPrompt, err := g.userPrompt(in)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	content, err := g.llm.CompleteJSON(ctx, g.systemPrompt(in.DaysBack), userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}
	res := Decode(content)
	if _, ok := res.(Valid); !ok {
		g.logger.Debug("draft not usable", "result", res.Label())
	}
	return res, nil
}

func (g *Generator) systemPrompt(daysBack int) string {
	if daysBack < 1 {
		daysBack = 1
	}
	today := g.now().Format("2006-01-02")
	return fmt.Sprintf(`You extract one real-world safety incident from news evidence for a travel-risk desk.
Today's date is %s (UTC).

Rules:
- Use ONLY the evidence provided. Never invent facts, places, dates or sources.
- Reject (ok=false) any event that started more than %d days before today, and any event from 2023 or earlier.
- If the evidence describes one of the recent incidents listed, answer ok=false with reason "duplicate".
- If the evidence is not about a concrete incident, answer ok=false with a short reason.

Severity rubric:
- critical: mass-casualty events or major escalation of armed conflict only.
- warning: significant, credibly reported disruption to travel or safety.
- caution: localized incidents with limited impact.
- informative: everything else (default).

Answer with a single JSON object:
{"ok": bool, "confidence": number 0..1, "title": string, "country": string, "location": string,
 "summary": string, "advice": [string], "sources": [url], "severity": "critical|warning|caution|informative",
 "eventType": string, "geoScope": "city|regional|national|multinational", "lat": number, "lng": number,
 "radiusKm": number, "eventStartDate": "YYYY-MM-DD", "eventEndDate": "YYYY-MM-DD", "reason": string}
Omit lat/lng/dates when the evidence does not support them.`, today, daysBack)
}

func (g *Generator) userPrompt(in Input) (string, error) {
	evidence := make([]domain.EvidenceItem, len(in.Evidence))
	for i, e := range in.Evidence {
		e.Description = textutil.Truncate(e.Description, maxEvidenceChars)
		evidence[i] = e
	}
	payload := struct {
		Source          string                `json:"source,omitempty"`
		Country         string                `json:"country,omitempty"`
		Evidence        []domain.EvidenceItem `json:"evidence"`
		RecentIncidents []RecentIncident      `json:"recentIncidents"`
	}{in.SourceHint, in.CountryHint, evidence, in.RecentIncidents}
	if payload.RecentIncidents == nil {
		payload.RecentIncidents = []RecentIncident{}
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	return string(b), nil
}

// rawDraft mirrors IncidentDraft with pointers so absent fields are visible.
type rawDraft struct {
	OK             *bool           `json:"ok"`
	Confidence     *float64        `json:"confidence"`
	Title          *string         `json:"title"`
	Country        *string         `json:"country"`
	Location       string          `json:"location"`
	Summary        *string         `json:"summary"`
	Advice         []string        `json:"advice"`
	Sources        *[]string       `json:"sources"`
	Severity       string          `json:"severity"`
	EventType      string          `json:"eventType"`
	GeoScope       string          `json:"geoScope"`
	Lat            *float64        `json:"lat"`
	Lng            *float64        `json:"lng"`
	RadiusKm       *float64        `json:"radiusKm"`
	GeoJSON        json.RawMessage `json:"geoJSON"`
	EventStartDate string          `json:"eventStartDate"`
	EventEndDate   string          `json:"eventEndDate"`
	Reason         string          `json:"reason"`
}

// Decode maps raw capability output to a Result. A missing eventStartDate is
// allowed; the validator infers it.
func Decode(content string) Result {
	var raw rawDraft
	if err := llmjson.Decode(content, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return SchemaViolation{Field: typeErr.Field, Detail: "expected " + typeErr.Type.String()}
		}
		return Malformed{Err: err}
	}
	if raw.OK == nil {
		return SchemaViolation{Field: "ok", Detail: "missing"}
	}
	confidence := 0.0
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}
	if !*raw.OK {
		return LowConfidence{Reason: strings.ToLower(strings.TrimSpace(raw.Reason)), Confidence: confidence}
	}

	switch {
	case raw.Confidence == nil:
		return SchemaViolation{Field: "confidence", Detail: "missing"}
	case confidence < 0 || confidence > 1:
		return SchemaViolation{Field: "confidence", Detail: "out of range"}
	case raw.Title == nil:
		return SchemaViolation{Field: "title", Detail: "missing"}
	case raw.Country == nil:
		return SchemaViolation{Field: "country", Detail: "missing"}
	case raw.Summary == nil:
		return SchemaViolation{Field: "summary", Detail: "missing"}
	case raw.Sources == nil:
		return SchemaViolation{Field: "sources", Detail: "missing"}
	}

	severity := domain.Severity(strings.ToLower(strings.TrimSpace(raw.Severity)))
	if severity == "" {
		severity = domain.SeverityInformative
	}
	if !severity.Valid() {
		return SchemaViolation{Field: "severity", Detail: fmt.Sprintf("unknown value %q", raw.Severity)}
	}
	geoJSON := raw.GeoJSON
	if s := strings.TrimSpace(string(geoJSON)); s == "" || s == "null" {
		geoJSON = nil
	}

	return Valid{Draft: domain.IncidentDraft{
		OK:             true,
		Confidence:     confidence,
		Title:          strings.TrimSpace(*raw.Title),
		Country:        strings.TrimSpace(*raw.Country),
		Location:       strings.TrimSpace(raw.Location),
		Summary:        strings.TrimSpace(*raw.Summary),
		Advice:         trimAll(raw.Advice),
		Sources:        trimAll(*raw.Sources),
		Severity:       severity,
		EventType:      strings.TrimSpace(raw.EventType),
		GeoScope:       strings.ToLower(strings.TrimSpace(raw.GeoScope)),
		Lat:            raw.Lat,
		Lng:            raw.Lng,
		RadiusKm:       raw.RadiusKm,
		GeoJSON:        geoJSON,
		EventStartDate: strings.TrimSpace(raw.EventStartDate),
		EventEndDate:   strings.TrimSpace(raw.EventEndDate),
		Reason:         strings.TrimSpace(raw.Reason),
	}}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
