package source

import (
	"context"
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
)

// MaxSyntheticPoints bounds a single synthetic fetch.
const MaxSyntheticPoints = 10_000_000

const (
	wavePeriod    = 64.0
	waveAmplitude = 100.0
	rippleModulus = 7
)

// Synthetic generates a deterministic wave with one point every step
// indices, at indices divisible by step. It has no bounds.
type Synthetic struct {
	step int64
}

// NewSynthetic creates a generator. Steps below 1 are raised to 1.
func NewSynthetic(step int64) *Synthetic {
	return &Synthetic{step: max(step, 1)}
}

// Value is the sample at index i.
func Value(i int64) float64 {
	return math.Round((math.Sin(float64(i)/wavePeriod)*waveAmplitude+float64(i%rippleModulus))*1000) / 1000
}

// Generate returns count points starting at the first multiple of step at
// or after from.
func Generate(from int64, count int, step int64) []series.Point {
	step = max(step, 1)
	first := ceilMultiple(from, step)
	points := make([]series.Point, count)

	for i := range points {
		idx := first + int64(i)*step
		points[i] = series.Point{Index: idx, Value: Value(idx)}
	}

	return points
}

// Fetch implements Source.
func (s *Synthetic) Fetch(ctx context.Context, start, end int64) ([]series.Point, error) {
	err := checkRange(start, end)
	if err != nil {
		return nil, err
	}

	err = ctx.Err()
	if err != nil {
		return nil, fmt.Errorf("fetch [%d, %d]: %w", start, end, err)
	}

	first := ceilMultiple(start, s.step)
	if first > end {
		return nil, nil
	}

	count := uint64(end-first)/uint64(s.step) + 1
	if count > MaxSyntheticPoints {
		return nil, fmt.Errorf("%w: %d points in [%d, %d]", ErrRangeTooLarge, count, start, end)
	}

	return Generate(first, int(count), s.step), nil
}

// Bounds implements Source. A synthetic source is unbounded.
func (s *Synthetic) Bounds(context.Context) (lo, hi int64, ok bool, err error) {
	return 0, 0, false, nil
}

// Close implements Source.
func (s *Synthetic) Close() error { return nil }

func ceilMultiple(v, step int64) int64 {
	r := v % step
	if r == 0 {
		return v
	}

	if r < 0 {
		return v - r
	}

	return v + step - r
}
