package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/domain"
	"scour/internal/geo"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const govArticle = "https://ke.usembassy.gov/security-alert-road-closures-nairobi/"

func ptr(f float64) *float64 { return &f }

func baseDraft() domain.IncidentDraft {
	return domain.IncidentDraft{
		OK:         true,
		Confidence: 0.7,
		Title:      "Protesters close main road in central Nairobi",
		Country:    "Kenya",
		Location:   "Nairobi CBD",
		Summary:    "Police closed Moi Avenue after protesters gathered outside parliament on Monday.",
		Sources:    []string{govArticle},
		Severity:   domain.SeverityWarning,
		Lat:        ptr(-1.2864),
		Lng:        ptr(36.8172),
	}
}

var kenyaSource = domain.Source{ID: "src-ke", Country: "Kenya", MinSeverityFloor: domain.SeverityCaution, Enabled: true}

func validate(t *testing.T, d domain.IncidentDraft, src domain.Source, ev []domain.EvidenceItem, daysBack int) (domain.Incident, *Rejection) {
	t.Helper()
	inc, err := NewWithClock(func() time.Time { return now }).Validate(d, src, ev, daysBack)
	if err == nil {
		return inc, nil
	}
	var rej *Rejection
	require.True(t, errors.As(err, &rej), "unexpected error type %T", err)
	return inc, rej
}

func TestEndToEndWarningFromGovernmentSource(t *testing.T) {
	evidence := []domain.EvidenceItem{{URL: govArticle, Title: "Security alert: road closures", RecencyHint: "1 day ago"}}
	inc, rej := validate(t, baseDraft(), kenyaSource, evidence, 7)
	require.Nil(t, rej)

	assert.Equal(t, domain.SeverityWarning, inc.Severity)
	require.True(t, inc.HasGeo())
	assert.InDelta(t, 75, *inc.RadiusKm, 1e-9)
	assert.True(t, geo.ValidPolygon(inc.GeoJSON))

	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), inc.EventStartAt)
	assert.Equal(t, 48*time.Hour, inc.EventEndAt.Sub(inc.EventStartAt))
	assert.Equal(t, "src-ke", inc.SourceID)
	assert.Equal(t, domain.IncidentDraftStatus, inc.Status)
}

func TestIncidentTakesSourceCountrySpelling(t *testing.T) {
	evidence := []domain.EvidenceItem{{URL: govArticle, Title: "Security alert: road closures", RecencyHint: "1 day ago"}}
	d := baseDraft()
	d.Country = " USA "
	us := domain.Source{ID: "src-us", Country: "United States"}
	inc, rej := validate(t, d, us, evidence, 7)
	require.Nil(t, rej)
	assert.Equal(t, "United States", inc.Country)

	inc, rej = validate(t, d, domain.Source{ID: "src-open"}, evidence, 7)
	require.Nil(t, rej)
	assert.Equal(t, "USA", inc.Country)
}

func TestDateFloor(t *testing.T) {
	cases := []struct {
		name     string
		start    string
		daysBack int
		reason   string
	}{
		{"year 2023", "2023-12-31", 1000, ReasonTooOldYear},
		{"outside lookback", "2026-02-01", 7, ReasonTooOldDaysBack},
		{"before absolute floor", "2024-06-01", 700, ReasonPre2025},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := baseDraft()
			d.EventStartDate = tc.start
			_, rej := validate(t, d, kenyaSource, nil, tc.daysBack)
			require.NotNil(t, rej)
			assert.Equal(t, tc.reason, rej.Reason)
		})
	}
}

func TestStartDateInference(t *testing.T) {
	d := baseDraft()
	_, rej := validate(t, d, kenyaSource, nil, 7)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonMissingStartDate, rej.Reason)

	ev := []domain.EvidenceItem{
		{URL: "https://example.com/other"},
		{URL: "https://www.nation.africa/kenya/news/2026/03/08/road-closed"},
	}
	start, ok := InferStartDate(d, ev, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), start)

	start, ok = InferStartDate(d, []domain.EvidenceItem{{URL: "https://example.com/x"}}, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), start)
}

func TestRejections(t *testing.T) {
	ev := []domain.EvidenceItem{{URL: govArticle, RecencyHint: "2 hours ago"}}

	d := baseDraft()
	d.Country = "Uganda"
	_, rej := validate(t, d, kenyaSource, ev, 7)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonCountryMismatch, rej.Reason)

	d = baseDraft()
	d.Summary = "Too short."
	_, rej = validate(t, d, kenyaSource, ev, 7)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonLowConfidence, rej.Reason)
	assert.Equal(t, domain.SeverityWarning, rej.Severity)
	assert.InDelta(t, 0.7, rej.Confidence, 1e-9)

	d = baseDraft()
	d.Confidence = 0.5
	_, rej = validate(t, d, kenyaSource, ev, 7)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonLowConfidence, rej.Reason)

	d = baseDraft()
	d.Lat = nil
	_, rej = validate(t, d, kenyaSource, ev, 7)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonMissingGeo, rej.Reason)

	d = baseDraft()
	d.Severity = domain.SeverityInformative
	_, rej = validate(t, d, kenyaSource, ev, 7)
	require.NotNil(t, rej)
	assert.Equal(t, "below_severity_floor_caution", rej.Reason)
}

func TestSeverityNeverBelowFloor(t *testing.T) {
	ev := []domain.EvidenceItem{{URL: govArticle, RecencyHint: "today"}}
	floors := []domain.Severity{domain.SeverityInformative, domain.SeverityCaution, domain.SeverityWarning}
	severities := []domain.Severity{domain.SeverityInformative, domain.SeverityCaution, domain.SeverityWarning, domain.SeverityCritical}
	for _, floor := range floors {
		for _, sev := range severities {
			src := kenyaSource
			src.MinSeverityFloor = floor
			d := baseDraft()
			d.Severity = sev
			inc, rej := validate(t, d, src, ev, 7)
			if rej == nil {
				assert.GreaterOrEqual(t, inc.Severity.Rank(), floor.Rank(), "floor=%s sev=%s", floor, sev)
			}
		}
	}
}

func TestSeverityClamp(t *testing.T) {
	ev := []domain.EvidenceItem{{URL: govArticle, RecencyHint: "today"}}
	open := domain.Source{ID: "s"}

	d := baseDraft()
	d.Severity = domain.SeverityCritical
	inc, rej := validate(t, d, open, ev, 7)
	require.Nil(t, rej)
	assert.Equal(t, domain.SeverityWarning, inc.Severity)
	assert.Equal(t, 72*time.Hour, inc.EventEndAt.Sub(inc.EventStartAt))

	d = baseDraft()
	d.Sources = []string{"https://someblog.example.com/post"}
	inc, rej = validate(t, d, open, ev, 7)
	require.Nil(t, rej)
	assert.Equal(t, domain.SeverityCaution, inc.Severity)

	d = baseDraft()
	d.Title = "5 things to know about the Nairobi protests"
	inc, rej = validate(t, d, open, ev, 7)
	require.Nil(t, rej)
	assert.Equal(t, domain.SeverityCaution, inc.Severity)
}

func TestEndDateKeptWhenAfterStart(t *testing.T) {
	d := baseDraft()
	d.EventStartDate = "2026-03-09"
	d.EventEndDate = "2026-03-12"
	inc, rej := validate(t, d, kenyaSource, nil, 7)
	require.Nil(t, rej)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), inc.EventEndAt)

	d.EventEndDate = "2026-03-01"
	inc, rej = validate(t, d, kenyaSource, nil, 7)
	require.Nil(t, rej)
	assert.Equal(t, 48*time.Hour, inc.EventEndAt.Sub(inc.EventStartAt))
}

func TestDefaultRadiusKm(t *testing.T) {
	assert.InDelta(t, 195, DefaultRadiusKm(domain.SeverityWarning, "national", "Flood"), 1e-9)
	assert.InDelta(t, 450, DefaultRadiusKm(domain.SeverityCritical, "multinational", ""), 1e-9)
	assert.InDelta(t, 18, DefaultRadiusKm(domain.SeverityInformative, "", "protest"), 1e-9)
	assert.InDelta(t, 500, DefaultRadiusKm(domain.SeverityCritical, "multinational", "storm"), 1e-9)
}

func TestIsCredibleURL(t *testing.T) {
	assert.True(t, IsCredibleURL("https://www.reuters.com/world/x"))
	assert.True(t, IsCredibleURL("https://www.gov.uk/foreign-travel-advice/kenya"))
	assert.True(t, IsCredibleURL("https://www.who.int/emergencies"))
	assert.True(t, IsCredibleURL(govArticle))
	assert.False(t, IsCredibleURL("https://news.example.org/a"))
	assert.False(t, IsCredibleURL("::::"))
}
