package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const attrCache = "cache"

// CacheStatsProvider exposes cache contents and hit/miss counters.
type CacheStatsProvider interface {
	Segments() int64
	Records() int64
	CacheHits() int64
	CacheMisses() int64
}

// RegisterCacheMetrics registers observable instruments that read every
// provider at collection time. Providers are labeled by their map key.
// Nil providers are skipped.
func RegisterCacheMetrics(mt metric.Meter, providers map[string]CacheStatsProvider) error {
	b := newMetricBuilder(mt)

	segments := b.gauge(instSegments)
	records := b.gauge(instRecords)
	hits := b.observableCounter(instHits)
	misses := b.observableCounter(instMisses)

	err := b.err()
	if err != nil {
		return err
	}

	_, err = mt.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for name, p := range providers {
			if p == nil {
				continue
			}

			attrs := metric.WithAttributes(attribute.String(attrCache, name))

			o.ObserveInt64(segments, p.Segments(), attrs)
			o.ObserveInt64(records, p.Records(), attrs)
			o.ObserveInt64(hits, p.CacheHits(), attrs)
			o.ObserveInt64(misses, p.CacheMisses(), attrs)
		}

		return nil
	}, segments, records, hits, misses)
	if err != nil {
		return fmt.Errorf("register cache metrics callback: %w", err)
	}

	return nil
}
