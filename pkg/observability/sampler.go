package observability

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/seriescache/pkg/seriescache"
)

// cacheSampler applies the configured sampling to request spans and drops
// per-gap fetch spans unless they were asked for.
type cacheSampler struct {
	base         sdktrace.Sampler
	traceFetches bool
}

// NewSampler returns the sampler Init installs: always on in debug mode,
// parent-based ratio sampling when SampleRatio is set and parent-based always
// on otherwise. Spans named seriescache.SpanFetch are dropped unless
// cfg.TraceFetches is set.
func NewSampler(cfg Config) sdktrace.Sampler {
	base := sdktrace.ParentBased(sdktrace.AlwaysSample())

	switch {
	case cfg.DebugTrace:
		base = sdktrace.AlwaysSample()
	case cfg.SampleRatio > 0:
		base = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	return cacheSampler{base: base, traceFetches: cfg.TraceFetches || cfg.DebugTrace}
}

// ShouldSample drops fetch spans and defers everything else to the base.
func (s cacheSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if !s.traceFetches && p.Name == seriescache.SpanFetch {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.Drop,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}

	return s.base.ShouldSample(p)
}

// Description names the sampler and its base.
func (s cacheSampler) Description() string {
	if s.traceFetches {
		return "CacheSampler{" + s.base.Description() + "}"
	}

	return "CacheSampler{" + s.base.Description() + ",drop=" + seriescache.SpanFetch + "}"
}
