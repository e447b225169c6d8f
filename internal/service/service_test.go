package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/internal/source"
	"github.com/Sumatoshi-tech/seriescache/pkg/config"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
	"github.com/Sumatoshi-tech/seriescache/pkg/rangeset"
	"github.com/Sumatoshi-tech/seriescache/pkg/seriescache"
)

const (
	testMaxSpan  = 1000
	testMaxBatch = 3
)

func newService(t *testing.T, snapshotDir string) *service.Service {
	t.Helper()

	src := source.NewSynthetic(1)

	return service.New(src, series.NewCache(src.Fetch), service.Options{
		MaxSpan:  testMaxSpan,
		MaxBatch: testMaxBatch,
		Snapshot: config.SnapshotConfig{Dir: snapshotDir, Name: "cache", Compression: "lz4"},
	})
}

// TestRange verifies cached and uncached reads report their gaps.
func TestRange(t *testing.T) {
	t.Parallel()

	svc := newService(t, "")
	ctx := context.Background()

	first, err := svc.Range(ctx, 0, 9)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, []rangeset.Gap[int64]{{Start: 0, End: 9}}, first.Gaps)
	require.Len(t, first.Points, 10)
	assert.Equal(t, int64(9), first.Points[9].Index)

	second, err := svc.Range(ctx, 2, 5)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Empty(t, second.Gaps)
	assert.Len(t, second.Points, 4)

	stats := svc.Stats()
	assert.Equal(t, 1, stats.Segments)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, stats.Hits, svc.CacheHits())
	assert.Equal(t, int64(10), svc.Records())
}

// TestRange_Limits verifies request validation.
func TestRange_Limits(t *testing.T) {
	t.Parallel()

	svc := newService(t, "")

	_, err := svc.Range(context.Background(), 5, 1)
	require.ErrorIs(t, err, service.ErrInvalidRange)

	_, err = svc.Range(context.Background(), 0, testMaxSpan)
	require.ErrorIs(t, err, service.ErrSpanTooLarge)

	_, err = svc.Range(context.Background(), 0, testMaxSpan-1)
	require.NoError(t, err)

	_, err = svc.Gaps(3, 2)
	require.ErrorIs(t, err, service.ErrInvalidRange)
}

// TestBatch verifies ranges are read in order and limits apply.
func TestBatch(t *testing.T) {
	t.Parallel()

	svc := newService(t, "")

	results, err := svc.Batch(context.Background(), []service.Range{{Start: 0, End: 4}, {Start: 3, End: 8}, {Start: 20, End: 21}})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []rangeset.Gap[int64]{{Start: 5, End: 8}}, results[1].Gaps)
	assert.Len(t, results[2].Points, 2)

	_, err = svc.Batch(context.Background(), make([]service.Range, testMaxBatch+1))
	require.ErrorIs(t, err, service.ErrBatchTooLarge)

	_, err = svc.Batch(context.Background(), []service.Range{{Start: 0, End: 1}, {Start: 9, End: 2}})
	require.ErrorIs(t, err, service.ErrInvalidRange)
}

// TestConcurrentReads verifies concurrent callers see consistent results.
func TestConcurrentReads(t *testing.T) {
	t.Parallel()

	svc := newService(t, "")

	var wg sync.WaitGroup

	for i := range 16 {
		wg.Add(1)

		go func(offset int64) {
			defer wg.Done()

			res, err := svc.Range(context.Background(), offset*10, offset*10+30)
			assert.NoError(t, err)
			assert.Len(t, res.Points, 31)
		}(int64(i))
	}

	wg.Wait()

	gaps, err := svc.Gaps(0, 180)
	require.NoError(t, err)
	assert.Empty(t, gaps)
	assert.Equal(t, int64(1), svc.Segments())
}

// TestSnapshot verifies a saved cache is restored into a fresh service.
func TestSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	svc := newService(t, dir)

	_, err := svc.Range(ctx, 0, 49)
	require.NoError(t, err)

	_, err = svc.Range(ctx, 100, 119)
	require.NoError(t, err)

	manifest, err := svc.SaveSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.Segments)
	assert.Equal(t, 70, manifest.Records)

	restored := newService(t, dir)

	loaded, err := restored.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(0), loaded.Min)
	assert.Equal(t, int64(119), loaded.Max)

	gaps, err := restored.Gaps(0, 119)
	require.NoError(t, err)
	assert.Equal(t, []rangeset.Gap[int64]{{Start: 50, End: 99}}, gaps)

	res, err := restored.Range(ctx, 100, 101)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.InDelta(t, source.Value(101), res.Points[1].Value, 0)
}

// TestSnapshot_NoDir verifies snapshots need a directory.
func TestSnapshot_NoDir(t *testing.T) {
	t.Parallel()

	svc := newService(t, "")

	_, err := svc.SaveSnapshot()
	require.ErrorIs(t, err, service.ErrNoSnapshotDir)

	_, err = svc.LoadSnapshot()
	require.ErrorIs(t, err, service.ErrNoSnapshotDir)
}

// TestOpen verifies construction from configuration and save on close.
func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	cfg := &config.Config{
		Cache:  config.CacheConfig{MergeDistance: 1, Overwrite: "replace"},
		Source: config.SourceConfig{Kind: config.SourceMemory, SeedPoints: 100, Step: 1},
		Snapshot: config.SnapshotConfig{
			Dir: dir, Name: "cache", Compression: "none", LoadOnStart: true, SaveOnExit: true,
		},
		Server: config.ServerConfig{MaxSpan: testMaxSpan, MaxBatch: testMaxBatch},
	}

	svc, err := service.Open(ctx, cfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Ready(ctx))

	res, err := svc.Range(ctx, 90, 120)
	require.NoError(t, err)
	assert.Len(t, res.Points, 10)

	require.NoError(t, svc.Close(ctx))

	reopened, err := service.Open(ctx, cfg, nil, nil)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, reopened.Close(ctx)) })

	gaps, err := reopened.Gaps(90, 99)
	require.NoError(t, err)
	assert.Empty(t, gaps)

	// Coverage ends at the last stored point, so the source tail stays a gap.
	gaps, err = reopened.Gaps(90, 120)
	require.NoError(t, err)
	assert.Equal(t, []rangeset.Gap[int64]{{Start: 100, End: 120}}, gaps)
}

// TestOpen_FetchSpanSourceKind verifies fetch spans name the source they read.
func TestOpen_FetchSpanSourceKind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	cfg := &config.Config{
		Cache:  config.CacheConfig{MergeDistance: 1, Overwrite: "replace"},
		Source: config.SourceConfig{Kind: config.SourceSynthetic, Step: 1},
		Server: config.ServerConfig{MaxSpan: testMaxSpan, MaxBatch: testMaxBatch},
	}

	svc, err := service.Open(ctx, cfg, nil, tp.Tracer("test"))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, svc.Close(ctx)) })

	_, err = svc.Range(ctx, 0, 9)
	require.NoError(t, err)

	var kinds []string

	for _, span := range recorder.Ended() {
		if span.Name() != seriescache.SpanFetch {
			continue
		}

		for _, kv := range span.Attributes() {
			if kv.Key == observability.AttrSourceKind {
				kinds = append(kinds, kv.Value.AsString())
			}
		}
	}

	assert.Equal(t, []string{config.SourceSynthetic}, kinds)
}
