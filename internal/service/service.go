// Package service shares one point cache between the HTTP server, the MCP
// tools and the CLI. Every cache access is serialized by a mutex.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
	"github.com/Sumatoshi-tech/seriescache/internal/source"
	"github.com/Sumatoshi-tech/seriescache/pkg/config"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
	"github.com/Sumatoshi-tech/seriescache/pkg/rangeset"
	"github.com/Sumatoshi-tech/seriescache/pkg/seriescache"
)

// Sentinel errors.
var (
	ErrInvalidRange   = errors.New("start is greater than end")
	ErrSpanTooLarge   = errors.New("range exceeds max span")
	ErrBatchTooLarge  = errors.New("batch exceeds max ranges")
	ErrNoSnapshotDir  = errors.New("snapshot dir is not configured")
	ErrSourceNotReady = errors.New("source not ready")
)

// Range is a closed index interval.
type Range struct {
	Start int64 `json:"start" yaml:"start"`
	End   int64 `json:"end"   yaml:"end"`
}

// RangeResult is the answer to one range read.
type RangeResult struct {
	Start  int64                 `json:"start"  yaml:"start"`
	End    int64                 `json:"end"    yaml:"end"`
	Cached bool                  `json:"cached" yaml:"cached"`
	Gaps   []rangeset.Gap[int64] `json:"gaps"   yaml:"gaps"`
	Points []series.Point        `json:"points" yaml:"points"`
}

// Options tunes a Service.
type Options struct {
	// MaxSpan caps end-start+1 of one read. Zero disables the cap.
	MaxSpan int64
	// MaxBatch caps the ranges of one batch. Zero disables the cap.
	MaxBatch int
	Snapshot config.SnapshotConfig
	Logger   *slog.Logger
}

// Service is a concurrency-safe point cache over a source.
type Service struct {
	mu    sync.Mutex
	cache *series.Cache

	src  source.Source
	opts Options
}

// New wraps cache, which must read from src.
func New(src source.Source, cache *series.Cache, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Service{cache: cache, src: src, opts: opts}
}

// Open builds the source and cache described by cfg. When the snapshot is
// configured to load on start and exists, it is restored.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, tracer trace.Tracer) (*Service, error) {
	src, err := source.Open(ctx, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	cacheOpts := []seriescache.Option{
		seriescache.WithMergeDistance(cfg.Cache.MergeDistance),
		seriescache.WithOverwriteMode(cfg.Cache.OverwriteMode()),
	}

	if logger != nil {
		cacheOpts = append(cacheOpts, seriescache.WithLogger(logger))
	}

	if tracer != nil {
		cacheOpts = append(cacheOpts, seriescache.WithTracer(tracer))
	}

	svc := New(src, series.NewCache(tagged(cfg.Source.Kind, src), cacheOpts...), Options{
		MaxSpan:  cfg.Server.MaxSpan,
		MaxBatch: cfg.Server.MaxBatch,
		Snapshot: cfg.Snapshot,
		Logger:   logger,
	})

	if cfg.Snapshot.LoadOnStart {
		manifest, loadErr := svc.LoadSnapshot()
		if loadErr != nil && !errors.Is(loadErr, fs.ErrNotExist) {
			return nil, errors.Join(loadErr, src.Close())
		}

		if loadErr == nil {
			svc.opts.Logger.InfoContext(ctx, "snapshot restored",
				"segments", manifest.Segments, "records", manifest.Records)
		}
	}

	return svc, nil
}

// tagged labels the active fetch span with the source kind.
func tagged(kind string, src source.Source) seriescache.FetchFunc[series.Point, int64] {
	return func(ctx context.Context, start, end int64) ([]series.Point, error) {
		trace.SpanFromContext(ctx).SetAttributes(observability.AttrSourceKind.String(kind))

		return src.Fetch(ctx, start, end)
	}
}

func (s *Service) check(start, end int64) error {
	if start > end {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, start, end)
	}

	if s.opts.MaxSpan > 0 && uint64(end-start) >= uint64(s.opts.MaxSpan) {
		return fmt.Errorf("%w: [%d, %d] > %d", ErrSpanTooLarge, start, end, s.opts.MaxSpan)
	}

	return nil
}

// Range reads [start, end] through the cache. The points are a copy.
func (s *Service) Range(ctx context.Context, start, end int64) (RangeResult, error) {
	err := s.check(start, end)
	if err != nil {
		return RangeResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rangeLocked(ctx, start, end)
}

func (s *Service) rangeLocked(ctx context.Context, start, end int64) (RangeResult, error) {
	gaps, err := s.cache.GetGaps(start, end)
	if err != nil {
		return RangeResult{}, err
	}

	view, err := s.cache.GetRange(ctx, start, end)
	if err != nil {
		return RangeResult{}, err
	}

	return RangeResult{
		Start:  start,
		End:    end,
		Cached: len(gaps) == 0,
		Gaps:   gaps,
		Points: view.Collect(),
	}, nil
}

// Batch reads every range in order under one lock. It stops at the first
// failing range.
func (s *Service) Batch(ctx context.Context, ranges []Range) ([]RangeResult, error) {
	if s.opts.MaxBatch > 0 && len(ranges) > s.opts.MaxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ranges), s.opts.MaxBatch)
	}

	for _, r := range ranges {
		err := s.check(r.Start, r.End)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]RangeResult, 0, len(ranges))

	for _, r := range ranges {
		res, err := s.rangeLocked(ctx, r.Start, r.End)
		if err != nil {
			return nil, fmt.Errorf("range [%d, %d]: %w", r.Start, r.End, err)
		}

		results = append(results, res)
	}

	return results, nil
}

// Gaps returns the uncached sub-ranges of [start, end] without fetching.
func (s *Service) Gaps(start, end int64) ([]rangeset.Gap[int64], error) {
	if start > end {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, start, end)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.GetGaps(start, end)
}

// Stats returns the cache statistics.
func (s *Service) Stats() seriescache.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Stats()
}

// Clear drops every cached point.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Clear()
}

// Segments implements observability.CacheStatsProvider.
func (s *Service) Segments() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Segments()
}

// Records implements observability.CacheStatsProvider.
func (s *Service) Records() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Records()
}

// CacheHits implements observability.CacheStatsProvider.
func (s *Service) CacheHits() int64 { return s.cache.CacheHits() }

// CacheMisses implements observability.CacheStatsProvider.
func (s *Service) CacheMisses() int64 { return s.cache.CacheMisses() }

// Ready reports whether the source answers.
func (s *Service) Ready(ctx context.Context) error {
	_, _, _, err := s.src.Bounds(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceNotReady, err)
	}

	return nil
}

// Source returns the backing source.
func (s *Service) Source() source.Source { return s.src }

// Close saves a snapshot when configured and closes the source.
func (s *Service) Close(ctx context.Context) error {
	var saveErr error

	if s.opts.Snapshot.SaveOnExit {
		manifest, err := s.SaveSnapshot()
		if err != nil {
			saveErr = err
		} else {
			s.opts.Logger.InfoContext(ctx, "snapshot saved",
				"segments", manifest.Segments, "records", manifest.Records)
		}
	}

	return errors.Join(saveErr, s.src.Close())
}
