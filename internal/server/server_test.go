package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
	"github.com/Sumatoshi-tech/seriescache/internal/server"
	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/internal/source"
	"github.com/Sumatoshi-tech/seriescache/pkg/config"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
	"github.com/Sumatoshi-tech/seriescache/pkg/seriescache"
)

const (
	testMaxSpan  = 500
	testMaxBatch = 4
)

func newServer(t *testing.T, snapshotDir string) *server.Server {
	t.Helper()

	src := source.NewSynthetic(1)
	svc := service.New(src, series.NewCache(src.Fetch), service.Options{
		MaxSpan:  testMaxSpan,
		MaxBatch: testMaxBatch,
		Snapshot: config.SnapshotConfig{Dir: snapshotDir, Name: "cache", Compression: "lz4"},
	})

	metrics, _, err := observability.PrometheusHandler()
	require.NoError(t, err)

	srv, err := server.New(config.ServerConfig{}, svc, server.Deps{Metrics: metrics})
	require.NoError(t, err)

	return srv
}

func do(t *testing.T, srv *server.Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	return out
}

// TestRange verifies range reads and gap reporting over HTTP.
func TestRange(t *testing.T) {
	t.Parallel()

	srv := newServer(t, "")

	rec := do(t, srv, http.MethodGet, "/range?start=10&end=14", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	first := decode[service.RangeResult](t, rec)
	assert.False(t, first.Cached)
	require.Len(t, first.Points, 5)
	assert.Equal(t, int64(10), first.Points[0].Index)

	rec = do(t, srv, http.MethodGet, "/gaps?start=0&end=20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"start":0,"end":20,"gaps":[{"start":0,"end":9},{"start":15,"end":20}]}`,
		rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/range?start=11&end=12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[service.RangeResult](t, rec).Cached)

	stats := decode[seriescache.Stats](t, do(t, srv, http.MethodGet, "/stats", ""))
	assert.Equal(t, 1, stats.Segments)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

// TestRange_BadRequests verifies parameter and limit errors map to 400.
func TestRange_BadRequests(t *testing.T) {
	t.Parallel()

	srv := newServer(t, "")

	for _, target := range []string{
		"/range?start=1",
		"/range?start=a&end=2",
		"/range?start=5&end=1",
		"/range?start=0&end=500",
		"/gaps?end=3",
	} {
		rec := do(t, srv, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.NotEmpty(t, decode[map[string]string](t, rec)["error"], target)
	}

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodPost, "/range?start=0&end=1", "").Code)
}

// TestBatch verifies schema validation and batch reads.
func TestBatch(t *testing.T) {
	t.Parallel()

	srv := newServer(t, "")

	rec := do(t, srv, http.MethodPost, "/batch", `{"ranges":[{"start":0,"end":3},{"start":2,"end":6}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Results []service.RangeResult `json:"results"`
	}

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.Len(t, body.Results[0].Points, 4)
	assert.Len(t, body.Results[1].Points, 5)

	for _, bad := range []string{
		`{}`,
		`{"ranges":[]}`,
		`{"ranges":[{"start":0}]}`,
		`{"ranges":[{"start":0,"end":1.5}]}`,
		`{"ranges":[{"start":0,"end":1,"step":2}]}`,
		`not json`,
		`{"ranges":[{"start":0,"end":1},{"start":0,"end":1},{"start":0,"end":1},{"start":0,"end":1},{"start":0,"end":1}]}`,
	} {
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/batch", bad).Code, bad)
	}
}

// TestSnapshotAndClear verifies the admin routes.
func TestSnapshotAndClear(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusConflict, do(t, newServer(t, ""), http.MethodPost, "/snapshot", "").Code)

	srv := newServer(t, t.TempDir())

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/range?start=0&end=9", "").Code)

	rec := do(t, srv, http.MethodPost, "/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(10), decode[map[string]any](t, rec)["records"])

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/cache", "").Code)

	stats := decode[seriescache.Stats](t, do(t, srv, http.MethodGet, "/stats", ""))
	assert.Zero(t, stats.Segments)
}

// TestOperationalRoutes verifies health, readiness and metrics.
func TestOperationalRoutes(t *testing.T) {
	t.Parallel()

	srv := newServer(t, "")

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/readyz", "").Code)

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// TestServe verifies the server stops when its context is canceled.
func TestServe(t *testing.T) {
	t.Parallel()

	srv := newServer(t, "")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- srv.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/healthz"

	require.Eventually(t, func() bool {
		resp, getErr := http.Get(url) //nolint:noctx // test probe.
		if getErr != nil {
			return false
		}

		resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
