package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cefr-dataset/internal/progress"
	"github.com/JakeFAU/cefr-dataset/internal/progress/sinks"
)

func newTestServer(t *testing.T) (*Server, *sinks.StatusSink, *prometheus.Registry) {
	t.Helper()
	status := sinks.NewStatusSink()
	reg := prometheus.NewRegistry()
	srv, err := NewServer(Options{Status: status, Registry: reg})
	require.NoError(t, err)
	return srv, status, reg
}

func startRun(t *testing.T, status *sinks.StatusSink) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, status.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(id), TS: time.Now(), Stage: progress.StageRunStart, Total: 10},
		{RunID: progress.UUIDToBytes(id), TS: time.Now(), Stage: progress.StageBatchDone, Batch: 1, Cursor: 5, Valid: 3},
	}))
	return id
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzWaitsForRun(t *testing.T) {
	t.Parallel()

	srv, status, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	startRun(t, status)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), sinks.StateRunning)
}

func TestStatusReturnsSnapshot(t *testing.T) {
	t.Parallel()

	srv, status, _ := newTestServer(t)
	id := startRun(t, status)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap sinks.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, id.String(), snap.RunID)
	require.Equal(t, 5, snap.Cursor)
	require.Equal(t, 10, snap.Total)
	require.InDelta(t, 50.0, snap.Percent, 1e-9)
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	srv, status, _ := newTestServer(t)
	id := startRun(t, status)

	cases := []struct {
		path string
		code int
	}{
		{"/v1/runs/" + id.String(), http.StatusOK},
		{"/v1/runs/" + uuid.NewString(), http.StatusNotFound},
		{"/v1/runs/not-a-uuid", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.Equal(t, tc.code, rec.Code, tc.path)
	}
}

func TestMetricsEndpointExposesRegistry(t *testing.T) {
	t.Parallel()

	srv, _, reg := newTestServer(t)
	sink, err := sinks.NewPrometheusSink(reg)
	require.NoError(t, err)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageRunStart, Total: 3},
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "cefr_runs_started_total 1")
	require.Contains(t, rec.Body.String(), `cefr_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Parallel()

	srv, _, reg := newTestServer(t)
	for _, path := range []string{"/v1/runs/" + uuid.NewString(), "/v1/runs/" + uuid.NewString()} {
		srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	require.Equal(t, 1, testutil.CollectAndCount(reg, "cefr_http_requests_total"))

	_, err := NewHTTPMetrics(reg)
	require.Error(t, err)
}

func TestNewServerRequiresStatus(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Options{})
	require.Error(t, err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, srv.Handler(), nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
