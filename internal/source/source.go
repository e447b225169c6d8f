// Package source provides the slow backends a point cache reads through.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
	"github.com/Sumatoshi-tech/seriescache/pkg/config"
)

// Sentinel errors.
var (
	ErrInvalidRange  = errors.New("source: start after end")
	ErrRangeTooLarge = errors.New("source: range too large")
	ErrUnknownKind   = errors.New("source: unknown kind")
	ErrInvalidTable  = errors.New("source: invalid table name")
)

// Source returns the points with indices in [start, end], ascending.
type Source interface {
	Fetch(ctx context.Context, start, end int64) ([]series.Point, error)
	// Bounds returns the lowest and highest stored index. ok is false for an
	// empty or unbounded source.
	Bounds(ctx context.Context) (lo, hi int64, ok bool, err error)
	Close() error
}

// Seeder is a source that accepts points.
type Seeder interface {
	Seed(ctx context.Context, points []series.Point) error
}

// Open builds the source described by cfg. Memory sources are filled with
// cfg.SeedPoints generated points; SQLite sources are used as stored.
func Open(ctx context.Context, cfg config.SourceConfig) (Source, error) {
	var (
		src Source
		err error
	)

	switch cfg.Kind {
	case config.SourceSynthetic:
		src = NewSynthetic(cfg.Step)
	case config.SourceMemory:
		mem := NewMemory()

		err = mem.Seed(ctx, Generate(0, cfg.SeedPoints, cfg.Step))
		src = mem
	case config.SourceSQLite:
		src, err = OpenSQLite(ctx, cfg.DSN, cfg.Table)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}

	if err != nil {
		return nil, err
	}

	if cfg.Latency > 0 {
		src = WithLatency(src, cfg.Latency)
	}

	return src, nil
}

type delayed struct {
	Source

	latency time.Duration
}

// WithLatency delays every fetch of src by d, honoring cancellation.
func WithLatency(src Source, d time.Duration) Source {
	return &delayed{Source: src, latency: d}
}

func (s *delayed) Fetch(ctx context.Context, start, end int64) ([]series.Point, error) {
	timer := time.NewTimer(s.latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch [%d, %d]: %w", start, end, ctx.Err())
	case <-timer.C:
	}

	return s.Source.Fetch(ctx, start, end)
}

func checkRange(start, end int64) error {
	if start > end {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, start, end)
	}

	return nil
}
