package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetsync/leetsync-stats/internal/application/query"
	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/metrics"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/persistence/memory"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler/jobs"
)

var testNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

type fakeBatch struct{ last *jobs.BatchResult }

func (f fakeBatch) LastResult() *jobs.BatchResult { return f.last }

type fakeJobs struct {
	mu      sync.Mutex
	running bool
	ran     chan string
}

func (f *fakeJobs) ListJobs() []scheduler.JobInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []scheduler.JobInfo{{
		Name:     "daily_stats",
		Schedule: "daily 02:00 UTC",
		Enabled:  true,
		Running:  f.running,
		NextRun:  testNow.Add(17 * time.Hour),
	}}
}

func (f *fakeJobs) RunNow(_ context.Context, name string) (*scheduler.JobResult, error) {
	f.ran <- name
	return &scheduler.JobResult{JobName: name, Success: true}, nil
}

func newTestServer(t *testing.T, deps Dependencies, opts ...func(*Config)) http.Handler {
	t.Helper()
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	srv := NewServer(cfg, deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, Dependencies{Health: fakeHealth{}})
	rec, body := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	h = newTestServer(t, Dependencies{Health: fakeHealth{err: errors.New("stats cache: connection refused")}})
	rec, body = do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, body.Success)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestRequestIDIsPropagated(t *testing.T) {
	h := newTestServer(t, Dependencies{})
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"request_id":"abc-123"`)
}

func TestGetUserStats(t *testing.T) {
	store := memory.NewStore(memory.WithClock(func() time.Time { return testNow }))
	day := stats.BuildDailyStats("alice", "2025-06-01", stats.DailyFacts{TotalSolved: 3}, testNow)
	total := stats.TotalStats{Username: "alice", TotalSolvedCount: 42}
	store.Seed("alice", &day, &total)

	users := query.NewGetUserStatsHandler(store, time.UTC).WithClock(func() time.Time { return testNow })
	h := newTestServer(t, Dependencies{UserStats: users})

	rec, body := do(t, h, http.MethodGet, "/api/v1/users/alice/stats?days=3")
	require.Equal(t, http.StatusOK, rec.Code)

	raw, err := json.Marshal(body.Data)
	require.NoError(t, err)
	var dto query.UserStatsDTO
	require.NoError(t, json.Unmarshal(raw, &dto))
	assert.Equal(t, "2025-06-01", dto.EndDate)
	assert.Equal(t, 42, dto.Total.TotalSolvedCount)
	assert.Equal(t, 3, dto.Window.Days)
	assert.Equal(t, 3, dto.Window.TotalSolved)

	tests := []struct {
		target string
		status int
	}{
		{"/api/v1/users/bob/stats", http.StatusNotFound},
		{"/api/v1/users/alice/stats?days=abc", http.StatusBadRequest},
		{"/api/v1/users/alice/stats?date=yesterday", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec, body := do(t, h, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, body.Error)
		})
	}
}

func TestLastBatch(t *testing.T) {
	h := newTestServer(t, Dependencies{Batch: fakeBatch{}})
	rec, _ := do(t, h, http.MethodGet, "/api/v1/batch/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	last := &jobs.BatchResult{
		RunID:     "run-1",
		Date:      "2025-06-01",
		Total:     4,
		Processed: 2,
		Committed: 2,
		Failed:    2,
		Failures: []jobs.UserFailure{
			{Username: "carol", Err: errors.New("boom")},
			{Username: "dave", Err: errors.New("circuit breaker is open"), Retryable: true},
		},
		StartedAt: testNow,
		Duration:  1500 * time.Millisecond,
	}
	h = newTestServer(t, Dependencies{Batch: fakeBatch{last: last}})
	rec, _ = do(t, h, http.MethodGet, "/api/v1/batch/last")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data batchDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Successfully processed stats for 2/4 users on 2025-06-01", resp.Data.Summary)
	assert.Equal(t, metrics.BatchPartial, resp.Data.Outcome)
	assert.Equal(t, int64(1500), resp.Data.DurationMs)
	require.Len(t, resp.Data.Failures, 2)
	assert.Equal(t, "boom", resp.Data.Failures[0].Error)
	assert.False(t, resp.Data.Failures[0].Retryable)
	assert.True(t, resp.Data.Failures[1].Retryable)
	assert.Contains(t, rec.Body.String(), `"retryable":true`)
}

func TestRunBatch(t *testing.T) {
	runner := &fakeJobs{ran: make(chan string, 1)}
	deps := Dependencies{Jobs: runner, BatchJobName: "daily_stats"}

	h := newTestServer(t, deps)
	rec, _ := do(t, h, http.MethodPost, "/api/v1/batch/run")
	assert.Equal(t, http.StatusNotFound, rec.Code, "trigger is off by default")

	h = newTestServer(t, deps, func(c *Config) { c.EnableTrigger = true })
	rec, _ = do(t, h, http.MethodPost, "/api/v1/batch/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case name := <-runner.ran:
		assert.Equal(t, "daily_stats", name)
	case <-time.After(time.Second):
		t.Fatal("job was not triggered")
	}

	runner.mu.Lock()
	runner.running = true
	runner.mu.Unlock()
	rec, _ = do(t, h, http.MethodPost, "/api/v1/batch/run")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body := do(t, h, http.MethodGet, "/api/v1/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := body.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.RecordUser(metrics.UserCommitted)

	h := newTestServer(t, Dependencies{Metrics: m.Handler()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `leetsync_stats_users_processed_total{outcome="committed"} 1`)
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{})
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), srv.withRequestID, srv.withRecovery, srv.withAccessLog)

	rec, body := do(t, h, http.MethodGet, "/anything")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "internal_server_error", body.Error.Code)
}

func TestChain_FirstMiddlewareRunsFirst(t *testing.T) {
	var order []string
	mark := func(name string) middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", clientIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.1")
	assert.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host, cfg.Port = "127.0.0.1", 0
	srv := NewServer(cfg, Dependencies{})
	assert.Zero(t, srv.Uptime())

	errCh := srv.StartAsync()
	assert.Eventually(t, func() bool { return srv.Uptime() > 0 }, time.Second, 5*time.Millisecond)

	again := srv.StartAsync()
	assert.Error(t, <-again)

	require.NoError(t, srv.Shutdown(context.Background()))
	err, open := <-errCh
	assert.False(t, open)
	assert.NoError(t, err)
}
