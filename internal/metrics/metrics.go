// Package metrics holds the Prometheus collectors for the scour pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry        *prometheus.Registry
	sourceOutcomes  *prometheus.CounterVec
	advanceDuration prometheus.Histogram
	sourcesDisabled *prometheus.CounterVec
	trendMatches    *prometheus.CounterVec
	trendsCreated   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.sourceOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scour",
		Name:      "source_outcomes_total",
		Help:      "Per-source pipeline outcomes",
	}, []string{"outcome"})
	m.advanceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scour",
		Name:      "advance_duration_seconds",
		Help:      "Wall-clock time spent in one job advance call",
		Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90},
	})
	m.sourcesDisabled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scour",
		Name:      "sources_disabled_total",
		Help:      "Sources auto-disabled by the health tracker",
	}, []string{"reason"})
	m.trendMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scour",
		Name:      "trend_matches_total",
		Help:      "Trend matching attempts by result",
	}, []string{"result"})
	m.trendsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scour",
		Name:      "trends_created_total",
		Help:      "Trends created from unmatched incidents",
	})
	m.registry.MustRegister(m.sourceOutcomes, m.advanceDuration, m.sourcesDisabled, m.trendMatches, m.trendsCreated)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SourceOutcome(outcome string) {
	if m == nil {
		return
	}
	m.sourceOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AdvanceDuration(seconds float64) {
	if m == nil {
		return
	}
	m.advanceDuration.Observe(seconds)
}

func (m *Metrics) SourceDisabled(reason string) {
	if m == nil {
		return
	}
	m.sourcesDisabled.WithLabelValues(reason).Inc()
}

func (m *Metrics) TrendMatch(result string) {
	if m == nil {
		return
	}
	m.trendMatches.WithLabelValues(result).Inc()
}

func (m *Metrics) TrendsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.trendsCreated.Add(float64(n))
}
