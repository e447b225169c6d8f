package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// attributeFilter is a SpanProcessor that forwards ended spans with only the
// exported attribute keys, so request bodies or ad-hoc debug values never
// reach the collector.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	allowed  map[attribute.Key]bool
	logger   *slog.Logger
}

// NewAttributeFilter wraps delegate so exported spans carry only the cache,
// source, MCP and HTTP keys listed in exportedKeys. Dropped keys are logged
// at Warn when logger is non-nil.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, allowed: exportedKeys, logger: logger}
}

// OnStart delegates to the wrapped processor.
func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

// OnEnd forwards a filtered view of s.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, attrs: f.keep(s.Name(), s.Attributes())})
}

// Shutdown delegates to the wrapped processor.
func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

// ForceFlush delegates to the wrapped processor.
func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) keep(span string, attrs []attribute.KeyValue) []attribute.KeyValue {
	kept := make([]attribute.KeyValue, 0, len(attrs))

	for _, kv := range attrs {
		if f.allowed[kv.Key] {
			kept = append(kept, kv)

			continue
		}

		if f.logger != nil {
			f.logger.Warn("span attribute dropped", "span", span, "key", string(kv.Key))
		}
	}

	return kept
}

// filteredSpan is a ReadOnlySpan with a replaced attribute list.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

// Attributes returns the exported attributes.
func (s *filteredSpan) Attributes() []attribute.KeyValue {
	return s.attrs
}
