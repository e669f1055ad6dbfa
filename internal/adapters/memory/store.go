// Package memory implements every storage port in process. It backs tests and
// STORE=memory development runs; nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scour/internal/domain"
	"scour/internal/geo"
	"scour/internal/ports"
)

type Store struct {
	mu        sync.Mutex
	sources   map[string]domain.Source
	incidents map[string]domain.Incident
	trends    map[string]domain.Trend
	jobs      map[string]domain.ScourJob
	health    map[string]domain.SourceHealthState
	quotas    map[string]int64
	locks     map[string]bool
	geo       bool
	now       func() time.Time
}

// Option customizes the store.
type Option func(*Store)

// WithoutGeoColumns simulates a schema that lacks the incident geo columns.
func WithoutGeoColumns() Option {
	return func(s *Store) { s.geo = false }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		sources:   map[string]domain.Source{},
		incidents: map[string]domain.Incident{},
		trends:    map[string]domain.Trend{},
		jobs:      map[string]domain.ScourJob{},
		health:    map[string]domain.SourceHealthState{},
		quotas:    map[string]int64{},
		locks:     map[string]bool{},
		geo:       true,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ ports.SourceRepository   = (*Store)(nil)
	_ ports.IncidentRepository = (*Store)(nil)
	_ ports.TrendRepository    = (*Store)(nil)
	_ ports.JobStore           = (*Store)(nil)
	_ ports.JobLocker          = (*Store)(nil)
	_ ports.HealthStore        = (*Store)(nil)
	_ ports.QuotaStore         = (*Store)(nil)
	_ ports.SchemaCapabilities = (*Store)(nil)
)

func (s *Store) SupportsGeoColumns() bool { return s.geo }

// Sources

func (s *Store) GetSource(_ context.Context, id string) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return domain.Source{}, ports.ErrNotFound
	}
	return cloneSource(src), nil
}

func (s *Store) ListEnabledSources(_ context.Context) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if src.Enabled {
			out = append(out, cloneSource(src))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetSourceEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return ports.ErrNotFound
	}
	src.Enabled = enabled
	s.sources[id] = src
	return nil
}

func (s *Store) UpsertSource(_ context.Context, src domain.Source) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	s.sources[src.ID] = cloneSource(src)
	return cloneSource(src), nil
}

// Incidents

func (s *Store) CreateIncident(_ context.Context, inc *domain.Incident) error {
	if inc == nil {
		return fmt.Errorf("incident is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = s.now()
	}
	if inc.Status == "" {
		inc.Status = domain.IncidentDraftStatus
	}
	stored := cloneIncident(*inc)
	if !s.geo {
		stored.Lat, stored.Lng, stored.RadiusKm, stored.GeoJSON = nil, nil, nil, nil
	}
	s.incidents[inc.ID] = stored
	return nil
}

func (s *Store) GetIncident(_ context.Context, id string) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, ports.ErrNotFound
	}
	return cloneIncident(inc), nil
}

func (s *Store) ListIncidentsByCountrySince(_ context.Context, country string, since time.Time) ([]domain.Incident, error) {
	return s.filterIncidents(func(inc domain.Incident) bool {
		return geo.SameCountry(inc.Country, country) && !inc.CreatedAt.Before(since)
	}, 0), nil
}

func (s *Store) ListRecentIncidents(_ context.Context, since time.Time, limit int) ([]domain.Incident, error) {
	return s.filterIncidents(func(inc domain.Incident) bool {
		return !inc.CreatedAt.Before(since)
	}, limit), nil
}

func (s *Store) ListUnmatchedIncidents(_ context.Context, since time.Time, limit int) ([]domain.Incident, error) {
	return s.filterIncidents(func(inc domain.Incident) bool {
		return inc.TrendID == nil && (inc.Status.Terminal() || inc.Published) && !inc.CreatedAt.Before(since)
	}, limit), nil
}

// filterIncidents returns matches newest first.
func (s *Store) filterIncidents(keep func(domain.Incident) bool, limit int) []domain.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Incident
	for _, inc := range s.incidents {
		if keep(inc) {
			out = append(out, cloneIncident(inc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) MergeIncidentSources(_ context.Context, id string, urls []string) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, ports.ErrNotFound
	}
	seen := make(map[string]bool, len(inc.Sources))
	for _, u := range inc.Sources {
		seen[u] = true
	}
	for _, u := range urls {
		if u != "" && !seen[u] {
			seen[u] = true
			inc.Sources = append(inc.Sources, u)
		}
	}
	s.incidents[id] = inc
	return cloneIncident(inc), nil
}

func (s *Store) UpdateIncidentStatus(_ context.Context, id string, status domain.IncidentStatus) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, ports.ErrNotFound
	}
	inc.Status = status
	s.incidents[id] = inc
	return cloneIncident(inc), nil
}

func (s *Store) MarkIncidentPublished(_ context.Context, id string) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, ports.ErrNotFound
	}
	inc.Published = true
	s.incidents[id] = inc
	return cloneIncident(inc), nil
}

func (s *Store) SetIncidentTrend(_ context.Context, id, trendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return ports.ErrNotFound
	}
	tid := trendID
	inc.TrendID = &tid
	s.incidents[id] = inc
	return nil
}

// Trends

func (s *Store) GetTrend(_ context.Context, id string) (domain.Trend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.trends[id]
	if !ok {
		return domain.Trend{}, ports.ErrNotFound
	}
	return cloneTrend(tr), nil
}

func (s *Store) ListActiveTrends(_ context.Context) ([]domain.Trend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trend
	for _, tr := range s.trends {
		if tr.Status == domain.TrendOpen || tr.Status == domain.TrendMonitoring {
			out = append(out, cloneTrend(tr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

func (s *Store) CreateTrend(_ context.Context, tr *domain.Trend) error {
	if tr == nil {
		return fmt.Errorf("trend is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	s.trends[tr.ID] = cloneTrend(*tr)
	return nil
}

func (s *Store) UpdateTrend(_ context.Context, tr domain.Trend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trends[tr.ID]; !ok {
		return ports.ErrNotFound
	}
	s.trends[tr.ID] = cloneTrend(tr)
	return nil
}

// Jobs

func (s *Store) CreateJob(_ context.Context, job domain.ScourJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (domain.ScourJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ScourJob{}, ports.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *Store) SaveJob(_ context.Context, job domain.ScourJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ports.ErrNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Store) ListRunningJobs(_ context.Context, limit int) ([]domain.ScourJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ScourJob
	for _, job := range s.jobs {
		if job.Status == domain.JobRunning {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TryLockJob(_ context.Context, jobID string) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[jobID] {
		return nil, false, nil
	}
	s.locks[jobID] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locks, jobID)
			s.mu.Unlock()
		})
	}, true, nil
}

// Health and quotas

func (s *Store) GetHealth(_ context.Context, sourceID string) (domain.SourceHealthState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.health[sourceID]
	if !ok {
		return domain.SourceHealthState{}, false, nil
	}
	return cloneHealth(st), true, nil
}

func (s *Store) SaveHealth(_ context.Context, state domain.SourceHealthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[state.SourceID] = cloneHealth(state)
	return nil
}

func (s *Store) IncrementQuota(_ context.Context, kind, day, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := kind + "|" + day + "|" + userID
	s.quotas[key]++
	return s.quotas[key], nil
}

// Deep copies keep callers from mutating stored state through shared slices.

func cloneSource(src domain.Source) domain.Source {
	src.Topics = append([]string(nil), src.Topics...)
	return src
}

func cloneIncident(inc domain.Incident) domain.Incident {
	inc.Advice = append([]string(nil), inc.Advice...)
	inc.Sources = append([]string(nil), inc.Sources...)
	if inc.GeoJSON != nil {
		inc.GeoJSON = append(json.RawMessage(nil), inc.GeoJSON...)
	}
	inc.Lat = cloneFloat(inc.Lat)
	inc.Lng = cloneFloat(inc.Lng)
	inc.RadiusKm = cloneFloat(inc.RadiusKm)
	if inc.TrendID != nil {
		tid := *inc.TrendID
		inc.TrendID = &tid
	}
	return inc
}

func cloneTrend(tr domain.Trend) domain.Trend {
	tr.Countries = append([]string(nil), tr.Countries...)
	tr.AlertIDs = append([]string(nil), tr.AlertIDs...)
	return tr
}

func cloneJob(job domain.ScourJob) domain.ScourJob {
	job.SourceIDs = append([]string(nil), job.SourceIDs...)
	job.Errors = append([]domain.JobError(nil), job.Errors...)
	job.Rejections = append([]domain.JobRejection(nil), job.Rejections...)
	return job
}

func cloneHealth(st domain.SourceHealthState) domain.SourceHealthState {
	st.History = append([]domain.HealthEntry(nil), st.History...)
	return st
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
