package observability

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// instrument names one seriescache instrument with its description and unit.
type instrument struct {
	name, desc, unit string
}

// Instruments exported by seriescache processes.
var (
	instRequests = instrument{"seriescache.requests.total", "Requests served", "{request}"}
	instDuration = instrument{"seriescache.request.duration.seconds", "Request duration", "s"}
	instErrors   = instrument{"seriescache.errors.total", "Requests that failed", "{error}"}
	instInflight = instrument{"seriescache.inflight.requests", "Requests in progress", "{request}"}
	instSegments = instrument{"seriescache.cache.segments", "Stored segments", "{segment}"}
	instRecords  = instrument{"seriescache.cache.records", "Stored records", "{record}"}
	instHits     = instrument{"seriescache.cache.hits", "Range reads served without fetching", "{read}"}
	instMisses   = instrument{"seriescache.cache.misses", "Range reads that fetched", "{read}"}
)

// metricBuilder creates instruments from one meter and collects every
// creation error, so a group needs one check.
type metricBuilder struct {
	meter metric.Meter
	errs  []error
}

func newMetricBuilder(mt metric.Meter) *metricBuilder {
	return &metricBuilder{meter: mt}
}

func (b *metricBuilder) track(inst instrument, err error) {
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("create %s: %w", inst.name, err))
	}
}

func (b *metricBuilder) err() error {
	return errors.Join(b.errs...)
}

func (b *metricBuilder) counter(inst instrument) metric.Int64Counter {
	c, err := b.meter.Int64Counter(inst.name, metric.WithDescription(inst.desc), metric.WithUnit(inst.unit))
	b.track(inst, err)

	return c
}

func (b *metricBuilder) histogram(inst instrument, bounds []float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(inst.name,
		metric.WithDescription(inst.desc),
		metric.WithUnit(inst.unit),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.track(inst, err)

	return h
}

func (b *metricBuilder) upDownCounter(inst instrument) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(inst.name, metric.WithDescription(inst.desc), metric.WithUnit(inst.unit))
	b.track(inst, err)

	return c
}

// gauge and observableCounter are read by the cache stats callback.
func (b *metricBuilder) gauge(inst instrument) metric.Int64ObservableGauge {
	g, err := b.meter.Int64ObservableGauge(inst.name, metric.WithDescription(inst.desc), metric.WithUnit(inst.unit))
	b.track(inst, err)

	return g
}

func (b *metricBuilder) observableCounter(inst instrument) metric.Int64ObservableCounter {
	c, err := b.meter.Int64ObservableCounter(inst.name, metric.WithDescription(inst.desc), metric.WithUnit(inst.unit))
	b.track(inst, err)

	return c
}
