package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
	"github.com/Sumatoshi-tech/seriescache/pkg/seriescache"
)

var errNotReady = errors.New("source offline")

type stubCache struct {
	segments, records, hits, misses int64
}

func (s *stubCache) Segments() int64    { return s.segments }
func (s *stubCache) Records() int64     { return s.records }
func (s *stubCache) CacheHits() int64   { return s.hits }
func (s *stubCache) CacheMisses() int64 { return s.misses }

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}

	return nil
}

func byCache(points []metricdata.DataPoint[int64]) map[string]int64 {
	out := make(map[string]int64, len(points))

	for _, dp := range points {
		name, _ := dp.Attributes.Value("cache")
		out[name.AsString()] = dp.Value
	}

	return out
}

// TestRegisterCacheMetrics verifies each provider is reported under its label.
func TestRegisterCacheMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	err := observability.RegisterCacheMetrics(mp.Meter("test"), map[string]observability.CacheStatsProvider{
		"points": &stubCache{segments: 3, records: 120, hits: 10, misses: 4},
		"ticks":  &stubCache{segments: 1, records: 9, hits: 2, misses: 1},
		"absent": nil,
	})
	require.NoError(t, err)

	rm := collect(t, reader)

	segments := findMetric(rm, "seriescache.cache.segments")
	require.NotNil(t, segments)

	gauge, ok := segments.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"points": 3, "ticks": 1}, byCache(gauge.DataPoints))

	hits := findMetric(rm, "seriescache.cache.hits")
	require.NotNil(t, hits)

	sum, ok := hits.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"points": 10, "ticks": 2}, byCache(sum.DataPoints))
}

// TestREDMetrics_Observe verifies requests and errors are counted.
func TestREDMetrics_Observe(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, red.Observe(ctx, "range", func() error { return nil }))
	require.ErrorIs(t, red.Observe(ctx, "range", func() error { return errNotReady }), errNotReady)

	rm := collect(t, reader)

	requests := findMetric(rm, "seriescache.requests.total")
	require.NotNil(t, requests)

	sum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	assert.Equal(t, int64(2), total)

	errorsTotal := findMetric(rm, "seriescache.errors.total")
	require.NotNil(t, errorsTotal)

	errSum, ok := errorsTotal.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errSum.DataPoints, 1)
	assert.Equal(t, int64(1), errSum.DataPoints[0].Value)

	inflight := findMetric(rm, "seriescache.inflight.requests")
	require.NotNil(t, inflight)

	inflightSum, ok := inflight.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, inflightSum.DataPoints, 1)
	assert.Equal(t, int64(0), inflightSum.DataPoints[0].Value)
}

// TestHTTPMiddleware verifies span naming, status capture and RED recording.
func TestHTTPMiddleware(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	handler := http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		if hr.URL.Path == "/broken" {
			http.Error(rw, "boom", http.StatusInternalServerError)

			return
		}

		_, _ = rw.Write([]byte("ok"))
	})

	mw := observability.HTTPMiddleware(tp.Tracer("test"), red, handler)

	for _, path := range []string{"/range", "/broken"} {
		mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /range", spans[0].Name)
	assert.Equal(t, "GET /broken", spans[1].Name)
	assert.Equal(t, "Error", spans[1].Status.Code.String())

	rm := collect(t, reader)
	errorsTotal := findMetric(rm, "seriescache.errors.total")
	require.NotNil(t, errorsTotal)
}

// TestHealthHandlers verifies liveness and readiness responses.
func TestHealthHandlers(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	observability.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	ready := observability.ReadyHandler(
		func(context.Context) error { return nil },
		func(context.Context) error { return errNotReady },
	)

	rec = httptest.NewRecorder()
	ready.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","reason":"source offline"}`, rec.Body.String())
}

// TestPrometheusHandler verifies instruments from the returned provider are scraped.
func TestPrometheusHandler(t *testing.T) {
	t.Parallel()

	handler, mp, err := observability.PrometheusHandler()
	require.NoError(t, err)

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	red.RecordRequest(context.Background(), "range", observability.StatusOK, 0)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "seriescache_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// TestNewLogger verifies service metadata and trace context on records.
func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.Environment = "test"

	logger := observability.NewLogger(cfg, &buf)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")

	logger.InfoContext(ctx, "served", "start", 1)
	span.End()

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "seriescache", record["service"])
	assert.Equal(t, "cli", record["mode"])
	assert.Equal(t, "test", record["env"])
	assert.Equal(t, span.SpanContext().TraceID().String(), record["trace_id"])
}

// TestNewLogger_Level verifies records below the level are dropped.
func TestNewLogger_Level(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogLevel = slog.LevelWarn

	logger := observability.NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

// TestParseLevel verifies level names.
func TestParseLevel(t *testing.T) {
	t.Parallel()

	level, err := observability.ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = observability.ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = observability.ParseLevel("loud")
	require.Error(t, err)
}

// TestParseOTLPHeaders verifies header parsing.
func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, observability.ParseOTLPHeaders(""))
	assert.Nil(t, observability.ParseOTLPHeaders("garbage"))
	assert.Equal(t,
		map[string]string{"authorization": "Bearer x", "tenant": "a"},
		observability.ParseOTLPHeaders(" authorization = Bearer x ,tenant=a"),
	)
}

// TestInit_NoEndpoint verifies no-op providers without a collector.
func TestInit_NoEndpoint(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.Logger)
	require.NoError(t, providers.Shutdown(context.Background()))
}

// TestSampler_DropsFetchSpans verifies per-gap fetch spans are only sampled
// when requested, while request spans always are.
func TestSampler_DropsFetchSpans(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		cfg  observability.Config
		want []string
	}{
		{"default", observability.Config{}, []string{seriescache.SpanGetRange}},
		{"trace fetches", observability.Config{TraceFetches: true}, []string{seriescache.SpanGetRange, seriescache.SpanFetch}},
		{"debug", observability.Config{DebugTrace: true}, []string{seriescache.SpanGetRange, seriescache.SpanFetch}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(
				sdktrace.WithSyncer(exporter),
				sdktrace.WithSampler(observability.NewSampler(tt.cfg)),
			)

			fetch := func(ctx context.Context, start, end int64) ([]int64, error) {
				out := make([]int64, 0, end-start+1)
				for i := start; i <= end; i++ {
					out = append(out, i)
				}

				return out, nil
			}

			cache := seriescache.New(fetch, func(k int64) int64 { return k },
				seriescache.WithTracer(tp.Tracer("test")))

			_, err := cache.GetRange(context.Background(), 0, 9)
			require.NoError(t, err)

			names := make([]string, 0, len(tt.want))
			for _, span := range exporter.GetSpans() {
				names = append(names, span.Name)
			}

			assert.ElementsMatch(t, tt.want, names)
		})
	}
}

// TestSampler_Ratio verifies the description names the base sampler and the
// dropped fetch span.
func TestSampler_Ratio(t *testing.T) {
	t.Parallel()

	sampler := observability.NewSampler(observability.Config{SampleRatio: 0.5})
	assert.Contains(t, sampler.Description(), "TraceIDRatioBased{0.5}")
	assert.Contains(t, sampler.Description(), "drop="+seriescache.SpanFetch)

	debug := observability.NewSampler(observability.Config{DebugTrace: true, SampleRatio: 0.5})
	assert.Equal(t, "CacheSampler{AlwaysOnSampler}", debug.Description())
}
