// Package httpadapter exposes the scour services over JSON HTTP.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"

	"scour/internal/auth"
	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/metrics"
	"scour/internal/ports"
	"scour/internal/services/health"
	"scour/internal/services/incidents"
	"scour/internal/services/quota"
	"scour/internal/services/scour"
	"scour/internal/services/sources"
	"scour/internal/services/trends"
)

const maxBodyBytes = 1 << 20

type (
	JobService interface {
		CreateJob(ctx context.Context, sourceIDs []string, maxSources int) (domain.ScourJob, error)
		Advance(ctx context.Context, jobID string, opts scour.AdvanceOptions) (scour.Progress, error)
		Status(ctx context.Context, jobID string) (domain.ScourJob, error)
	}
	SourceRunner interface {
		RunSourceByID(ctx context.Context, sourceID string, timeout time.Duration, daysBack int) scour.SourceResult
	}
	HealthReader interface {
		Stats(ctx context.Context, sourceID string) (domain.SourceHealthState, error)
	}
	TrendService interface {
		ProcessIncident(ctx context.Context, incidentID string) (trends.MatchResult, error)
		CreateTrendsFromUnmatched(ctx context.Context) ([]domain.Trend, error)
	}
	IncidentService interface {
		Transition(ctx context.Context, id string, status domain.IncidentStatus) (domain.Incident, error)
		MarkPublished(ctx context.Context, id string) (domain.Incident, error)
	}
	SourceImporter interface {
		Import(ctx context.Context, specs []sources.Spec) ([]domain.Source, error)
	}
)

// Deps are the services behind the routes.
type Deps struct {
	Jobs        JobService
	Runner      SourceRunner
	Health      HealthReader
	Trends      TrendService
	Incidents   IncidentService
	Importer    SourceImporter
	Sources     ports.SourceRepository
	Metrics     *metrics.Metrics
	Tokens      map[string]string
	AdminSecret string
	Logger      *slog.Logger
}

type Server struct {
	d      Deps
	logger *slog.Logger
}

func New(d Deps) *Server {
	return &Server{d: d, logger: logging.NewComponentLogger(d.Logger, "http")}
}

// Routes returns the router. Health and metrics endpoints sit outside
// authentication.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", s.d.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.d.Tokens, s.d.AdminSecret))
		r.Post("/scour-sources", s.scourSources)
		r.Get("/scour/status", s.scourStatus)
		r.Post("/sources/import", s.importSources)
		r.Post("/sources/{id}/scour", s.scourSource)
		r.Get("/sources/{id}/scour-stats", s.scourStats)
		r.Post("/trends/process-alert/{incidentId}", s.processAlert)
		r.Post("/trends/create-from-unmatched", s.createTrends)
		r.Post("/incidents/{id}/status", s.incidentStatus)
		r.Post("/incidents/{id}/published", s.incidentPublished)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) scourSources(w http.ResponseWriter, r *http.Request) {
	var req scourSourcesRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	ctx := r.Context()
	jobID := req.JobID
	if jobID == "" {
		job, err := s.d.Jobs.CreateJob(ctx, req.SourceIDs, req.MaxSources)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		jobID = job.ID
	}
	progress, err := s.d.Jobs.Advance(ctx, jobID, req.options())
	if err != nil {
		if progress.Job.ID == "" {
			s.writeError(w, r, err)
			return
		}
		// The job advanced partway; report where it stands with the error.
		resp := progressResponse(progress)
		resp.Error = err.Error()
		s.logger.Warn("advance stopped", "job_id", jobID, "error", err)
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse(progress))
}

func (s *Server) scourStatus(w http.ResponseWriter, r *http.Request) {
	var jobID string
	if err := runtime.BindQueryParameter("form", true, true, "jobId", r.URL.Query(), &jobID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	job, err := s.d.Jobs.Status(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Job: jobView{ScourJob: job, Total: job.Total(), ErrorCount: len(job.Errors)}})
}

func (s *Server) scourSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req runSourceRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	opts := scour.AdvanceOptions{
		SourceTimeout: time.Duration(req.TimeoutMs) * time.Millisecond,
		DaysBack:      req.DaysBack,
	}.Clamp()

	res := s.d.Runner.RunSourceByID(r.Context(), id, opts.SourceTimeout, opts.DaysBack)
	if res.Fatal != nil {
		s.writeError(w, r, res.Fatal)
		return
	}
	if res.Reason == scour.ReasonNotFound {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "source not found"})
		return
	}
	writeJSON(w, http.StatusOK, runSourceResponse{Result: toRunResult(res)})
}

func toRunResult(res scour.SourceResult) sourceRunResult {
	out := sourceRunResult{
		Severity:   string(res.Severity),
		Confidence: res.Confidence,
		QueryUsed:  res.QueryUsed,
	}
	switch res.Outcome {
	case health.OutcomeCreated:
		out.Created = 1
		if res.Incident != nil {
			out.IncidentID = res.Incident.ID
		}
	case health.OutcomeDup:
		out.Dup = 1
		out.DupGroupedInto = res.DuplicateOf
	case health.OutcomeLow:
		out.Low = 1
		out.Reject = res.Reason
	case health.OutcomeReject:
		out.Reject = res.Reason
	case health.OutcomeError:
		out.Error = res.Reason
	}
	return out
}

func (s *Server) scourStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.d.Sources.GetSource(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.d.Health.Stats(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats})
}

func (s *Server) processAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "incidentId")
	if !ok {
		return
	}
	res, err := s.d.Trends.ProcessIncident(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processAlertResponse{Matched: res.Matched, TrendID: res.TrendID})
}

func (s *Server) createTrends(w http.ResponseWriter, r *http.Request) {
	created, err := s.d.Trends.CreateTrendsFromUnmatched(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids := make([]string, 0, len(created))
	for _, tr := range created {
		ids = append(ids, tr.ID)
	}
	writeJSON(w, http.StatusOK, createTrendsResponse{Created: len(ids), TrendIDs: ids})
}

func (s *Server) incidentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req statusChangeRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	inc, err := s.d.Incidents.Transition(r.Context(), id, domain.IncidentStatus(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIncidentView(inc))
}

func (s *Server) incidentPublished(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	inc, err := s.d.Incidents.MarkPublished(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIncidentView(inc))
}

func (s *Server) importSources(w http.ResponseWriter, r *http.Request) {
	var specs []sources.Spec
	if !s.decode(w, r, &specs, false) {
		return
	}
	saved, err := s.d.Importer.Import(r.Context(), specs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids := make([]string, 0, len(saved))
	for _, src := range saved {
		ids = append(ids, src.ID)
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: len(ids), SourceIDs: ids})
}

// decode reads a JSON body into v. An empty body is accepted when optional.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return true
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return "", false
	}
	return v, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scour.ErrJobNotFound),
		errors.Is(err, ports.ErrNotFound),
		errors.Is(err, incidents.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scour.ErrJobBusy):
		return http.StatusConflict
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, incidents.ErrInvalidStatus),
		errors.Is(err, sources.ErrInvalidSpec):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
