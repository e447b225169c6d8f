// Package seriescache serves index ranges of ordered records from a sparse,
// self-merging cache in front of a slow source. Only the sub-ranges missing
// from the cache are fetched; results are folded into a rangeset.Set and the
// requested range is returned as a zero-copy view.
//
// A Cache is not safe for concurrent use. Hosting code that shares one must
// serialize calls.
package seriescache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/constraints"

	"github.com/Sumatoshi-tech/seriescache/pkg/alg/interval"
	"github.com/Sumatoshi-tech/seriescache/pkg/rangeset"
	"github.com/Sumatoshi-tech/seriescache/pkg/segment"
)

const tracerName = "seriescache"

// Span names.
const (
	SpanGetRange = "seriescache.GetRange"
	SpanFetch    = "seriescache.fetch"
)

// Span attribute keys.
const (
	AttrStart   = attribute.Key("seriescache.start")
	AttrEnd     = attribute.Key("seriescache.end")
	AttrGaps    = attribute.Key("seriescache.gaps")
	AttrRecords = attribute.Key("seriescache.records")
)

// FetchFunc loads records with keys in [start, end] from the source. The
// result must be strictly ascending by key; it may cover more than asked.
type FetchFunc[T any, K constraints.Signed] func(ctx context.Context, start, end K) ([]T, error)

type options struct {
	mergeDistance int64
	overwrite     segment.OverwriteMode
	logger        *slog.Logger
	tracer        trace.Tracer
}

// Option configures a Cache.
type Option func(*options)

// WithMergeDistance sets the largest key gap between stored stretches that
// still coalesces them. Values below 1 are raised to 1, so adjacent
// stretches always merge, and values beyond the key type are lowered to its
// largest key.
func WithMergeDistance(distance int64) Option {
	return func(o *options) {
		o.mergeDistance = distance
	}
}

// WithOverwriteMode sets how fetched records with already cached keys are
// resolved. The default is segment.OverwriteError.
func WithOverwriteMode(mode segment.OverwriteMode) Option {
	return func(o *options) {
		o.overwrite = mode
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets the tracer. The default is the global "seriescache" tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// Cache is a caching accessor over a FetchFunc.
type Cache[T any, K constraints.Signed] struct {
	set           *rangeset.Set[T, K]
	fetch         FetchFunc[T, K]
	keyOf         segment.KeyFunc[T, K]
	mergeDistance K
	logger        *slog.Logger
	tracer        trace.Tracer

	hits           atomic.Int64
	misses         atomic.Int64
	fetches        atomic.Int64
	fetchedRecords atomic.Int64
}

// New creates an empty cache.
func New[T any, K constraints.Signed](fetch FetchFunc[T, K], keyOf segment.KeyFunc[T, K], opts ...Option) *Cache[T, K] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	_, maxKey := interval.Bounds[K]()

	return &Cache[T, K]{
		set:           rangeset.New(keyOf, rangeset.WithOverwriteMode(o.overwrite)),
		fetch:         fetch,
		keyOf:         keyOf,
		mergeDistance: K(min(max(o.mergeDistance, 1), int64(maxKey))),
		logger:        o.logger,
		tracer:        o.tracer,
	}
}

// MergeDistance returns the effective merge distance.
func (c *Cache[T, K]) MergeDistance() K {
	return c.mergeDistance
}

// GetRange returns the records with keys in [start, end], fetching the
// uncovered sub-ranges first. Gaps are fetched one at a time in ascending
// order. A failed fetch aborts the call; gaps fetched before it stay cached.
func (c *Cache[T, K]) GetRange(ctx context.Context, start, end K) (rangeset.View[T], error) {
	ctx, span := c.tracer.Start(ctx, SpanGetRange, trace.WithAttributes(
		AttrStart.Int64(int64(start)),
		AttrEnd.Int64(int64(end)),
	))
	defer span.End()

	gaps, err := c.set.GetGaps(start, end)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return rangeset.View[T]{}, fmt.Errorf("get range: %w", err)
	}

	span.SetAttributes(AttrGaps.Int(len(gaps)))

	if len(gaps) == 0 {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}

	for _, gap := range gaps {
		err = c.fill(ctx, gap)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			return rangeset.View[T]{}, err
		}
	}

	if c.set.IsEmpty() {
		return rangeset.View[T]{}, nil
	}

	view, err := c.set.GetRange(start, end)
	if err != nil {
		return rangeset.View[T]{}, fmt.Errorf("get range: %w", err)
	}

	span.SetAttributes(AttrRecords.Int(view.Len()))

	return view, nil
}

// GetGaps returns the sub-ranges of [start, end] a GetRange call would fetch.
func (c *Cache[T, K]) GetGaps(start, end K) ([]rangeset.Gap[K], error) {
	gaps, err := c.set.GetGaps(start, end)
	if err != nil {
		return nil, fmt.Errorf("get gaps: %w", err)
	}

	return gaps, nil
}

func (c *Cache[T, K]) fill(ctx context.Context, gap rangeset.Gap[K]) error {
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("fetch [%d, %d]: %w", gap.Start, gap.End, err)
	}

	ctx, span := c.tracer.Start(ctx, SpanFetch, trace.WithAttributes(
		AttrStart.Int64(int64(gap.Start)),
		AttrEnd.Int64(int64(gap.End)),
	))
	defer span.End()

	records, err := c.fetch(ctx, gap.Start, gap.End)
	c.fetches.Add(1)

	if err != nil {
		c.logger.WarnContext(ctx, "fetch failed", "start", gap.Start, "end", gap.End, "error", err)

		return fmt.Errorf("fetch [%d, %d]: %w", gap.Start, gap.End, err)
	}

	c.fetchedRecords.Add(int64(len(records)))
	span.SetAttributes(AttrRecords.Int(len(records)))
	c.logger.DebugContext(ctx, "fetched gap", "start", gap.Start, "end", gap.End, "records", len(records))

	err = c.set.AddRange(records, c.mergeDistance)
	if err != nil {
		return fmt.Errorf("store [%d, %d]: %w", gap.Start, gap.End, err)
	}

	return nil
}

// Stats is a snapshot of cache contents and counters.
type Stats struct {
	Segments       int   `json:"segments"        yaml:"segments"`
	Records        int   `json:"records"         yaml:"records"`
	Min            int64 `json:"min"             yaml:"min"`
	Max            int64 `json:"max"             yaml:"max"`
	Hits           int64 `json:"hits"            yaml:"hits"`
	Misses         int64 `json:"misses"          yaml:"misses"`
	Fetches        int64 `json:"fetches"         yaml:"fetches"`
	FetchedRecords int64 `json:"fetched_records" yaml:"fetched_records"`
}

// Stats returns current contents and counters.
func (c *Cache[T, K]) Stats() Stats {
	return Stats{
		Segments:       c.set.Len(),
		Records:        c.set.Records(),
		Min:            int64(c.set.Min()),
		Max:            int64(c.set.Max()),
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Fetches:        c.fetches.Load(),
		FetchedRecords: c.fetchedRecords.Load(),
	}
}

// CacheHits returns the number of GetRange calls served without fetching.
func (c *Cache[T, K]) CacheHits() int64 { return c.hits.Load() }

// CacheMisses returns the number of GetRange calls that fetched.
func (c *Cache[T, K]) CacheMisses() int64 { return c.misses.Load() }

// Segments returns the number of stored segments.
func (c *Cache[T, K]) Segments() int64 { return int64(c.set.Len()) }

// Records returns the number of stored records.
func (c *Cache[T, K]) Records() int64 { return int64(c.set.Records()) }

// Clear drops every cached record. Counters are kept.
func (c *Cache[T, K]) Clear() {
	c.set.Clear()
}
