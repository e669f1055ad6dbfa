package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/adapters/memory"
	"scour/internal/auth"
	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/metrics"
	"scour/internal/services/health"
	"scour/internal/services/incidents"
	"scour/internal/services/quota"
	"scour/internal/services/scour"
	"scour/internal/services/sources"
	"scour/internal/services/trends"
)

// fakeRunner creates an incident for every source unless told otherwise.
type fakeRunner struct {
	mu      sync.Mutex
	store   *memory.Store
	results map[string]scour.SourceResult
	calls   []string
}

func (f *fakeRunner) RunSourceByID(ctx context.Context, id string, _ time.Duration, _ int) scour.SourceResult {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	res, ok := f.results[id]
	f.mu.Unlock()
	if ok {
		res.SourceID = id
		return res
	}
	if _, err := f.store.GetSource(ctx, id); err != nil {
		return scour.SourceResult{SourceID: id, Outcome: health.OutcomeError, Reason: scour.ReasonNotFound}
	}
	inc := domain.Incident{SourceID: id, Title: "Incident from " + id, Country: "Kenya", Severity: domain.SeverityCaution}
	_ = f.store.CreateIncident(ctx, &inc)
	return scour.SourceResult{SourceID: id, Outcome: health.OutcomeCreated, Incident: &inc}
}

type noMatchLLM struct{}

func (noMatchLLM) CompleteJSON(context.Context, string, string) (string, error) {
	return `{"match": false, "reason": "unrelated", "trends": []}`, nil
}

type testEnv struct {
	store  *memory.Store
	runner *fakeRunner
	srv    *httptest.Server
}

func newEnv(t *testing.T, tokens map[string]string, secret string) testEnv {
	t.Helper()
	store := memory.New()
	for i := 0; i < 3; i++ {
		_, err := store.UpsertSource(context.Background(), domain.Source{ID: fmt.Sprintf("s%d", i), Name: "src", Enabled: true})
		require.NoError(t, err)
	}
	logger := logging.NewNop()
	runner := &fakeRunner{store: store, results: map[string]scour.SourceResult{}}
	engine := trends.New(store, store, noMatchLLM{}, nil, trends.Config{}, nil, logger)
	srv := New(Deps{
		Jobs:        scour.NewManager(store, store, store, runner, nil, logger),
		Runner:      runner,
		Health:      health.New(store, store, health.DefaultPolicy(), nil, logger),
		Trends:      engine,
		Incidents:   incidents.New(store, engine, logger),
		Importer:    sources.New(store, logger),
		Sources:     store,
		Metrics:     metrics.New(),
		Tokens:      tokens,
		AdminSecret: secret,
		Logger:      logger,
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return testEnv{store: store, runner: runner, srv: ts}
}

func (e testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestScourSourcesCreatesAndDrainsJob(t *testing.T) {
	env := newEnv(t, nil, "")
	resp, body := env.do(t, http.MethodPost, "/scour-sources", map[string]any{"batchSize": 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["done"])
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(3), body["processedThisCall"])
	assert.Equal(t, float64(3), body["created"])
	assert.Equal(t, []any{}, body["errorsThisCall"])

	jobID := body["jobId"].(string)
	resp, status := env.do(t, http.MethodGet, "/scour/status?jobId="+jobID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := status["job"].(map[string]any)
	assert.Equal(t, "done", job["status"])
	assert.Equal(t, float64(3), job["total"])
	assert.Equal(t, float64(0), job["errorCount"])

	// Resuming a finished job is a no-op.
	resp, body = env.do(t, http.MethodPost, "/scour-sources", map[string]any{"jobId": jobID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["processedThisCall"])
	assert.Len(t, env.runner.calls, 3)
}

func TestScourStatusErrors(t *testing.T) {
	env := newEnv(t, nil, "")
	resp, _ := env.do(t, http.MethodGet, "/scour/status?jobId=nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/scour/status", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/scour-sources", map[string]any{"jobId": "nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScourSourcesBusyJob(t *testing.T) {
	env := newEnv(t, nil, "")
	job, err := scour.NewManager(env.store, env.store, env.store, env.runner, nil, logging.NewNop()).CreateJob(context.Background(), nil, 0)
	require.NoError(t, err)
	unlock, ok, err := env.store.TryLockJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	resp, _ := env.do(t, http.MethodPost, "/scour-sources", map[string]any{"jobId": job.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestScourSourcesQuotaStops(t *testing.T) {
	env := newEnv(t, nil, "")
	env.runner.results["s1"] = scour.SourceResult{Fatal: quota.ErrQuotaExceeded}

	resp, body := env.do(t, http.MethodPost, "/scour-sources", map[string]any{"batchSize": 10})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, float64(1), body["nextIndex"])
	assert.Equal(t, false, body["done"])
	assert.Contains(t, body["error"], "quota")
}

func TestSingleSourceRunAndStats(t *testing.T) {
	env := newEnv(t, nil, "")
	env.runner.results["s2"] = scour.SourceResult{Outcome: health.OutcomeDup, DuplicateOf: "inc-1"}

	resp, body := env.do(t, http.MethodPost, "/sources/s0/scour", map[string]any{"timeoutMs": 1000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	assert.Equal(t, float64(1), result["created"])
	assert.Equal(t, float64(0), result["dup"])

	_, body = env.do(t, http.MethodPost, "/sources/s2/scour", nil)
	result = body["result"].(map[string]any)
	assert.Equal(t, float64(1), result["dup"])
	assert.Equal(t, "inc-1", result["dupGroupedInto"])

	resp, _ = env.do(t, http.MethodPost, "/sources/missing/scour", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/sources/s0/scour-stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := body["stats"].(map[string]any)
	assert.Equal(t, "s0", stats["sourceId"])

	resp, _ = env.do(t, http.MethodGet, "/sources/missing/scour-stats", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIncidentTransitionsAndTrends(t *testing.T) {
	env := newEnv(t, nil, "")
	inc := domain.Incident{Title: "Flooding in Mombasa", Country: "Kenya", Severity: domain.SeverityCaution}
	require.NoError(t, env.store.CreateIncident(context.Background(), &inc))

	resp, body := env.do(t, http.MethodPost, "/incidents/"+inc.ID+"/status", map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", body["status"])

	resp, _ = env.do(t, http.MethodPost, "/incidents/"+inc.ID+"/status", map[string]any{"status": "draft"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/incidents/"+inc.ID+"/published", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["published"])

	resp, body = env.do(t, http.MethodPost, "/trends/process-alert/"+inc.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["matched"])

	resp, _ = env.do(t, http.MethodPost, "/trends/process-alert/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/trends/create-from-unmatched", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["created"])
	assert.Equal(t, []any{}, body["trendIds"])
}

func TestImportSources(t *testing.T) {
	env := newEnv(t, nil, "")
	resp, body := env.do(t, http.MethodPost, "/sources/import", []map[string]any{
		{"name": "Reuters Africa", "url": "https://www.reuters.com/world/africa/", "country": "Kenya", "type": "search"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["imported"])
	assert.Equal(t, []any{"reuters-com-world-africa"}, body["sourceIds"])

	resp, _ = env.do(t, http.MethodPost, "/sources/import", []map[string]any{{"url": "https://example.com"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthentication(t *testing.T) {
	env := newEnv(t, map[string]string{"tok-1": "alice"}, "s3cret")

	resp, _ := env.do(t, http.MethodGet, "/scour/status?jobId=x", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/scour/status?jobId=x", nil, "Authorization", "Bearer tok-1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/scour/status?jobId=x", nil, auth.AdminSecretHeader, "s3cret")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/scour/status?jobId=x", nil, auth.AdminSecretHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
