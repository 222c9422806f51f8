package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the feed's metric instruments.
type Metrics struct {
	requests    metric.Int64Counter
	duration    metric.Float64Histogram
	rows        metric.Int64Counter
	schemaCache metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("odata_requests_total",
		metric.WithDescription("Total number of feed requests"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("odata_request_duration_seconds",
		metric.WithDescription("Feed request duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	rows, err := meter.Int64Counter("odata_rows_returned_total",
		metric.WithDescription("Rows written in collection responses"))
	if err != nil {
		return nil, err
	}
	schemaCache, err := meter.Int64Counter("odata_schema_cache_events_total",
		metric.WithDescription("Schema cache hits and misses"))
	if err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, duration: duration, rows: rows, schemaCache: schemaCache}, nil
}

// RecordRequest records one completed request.
func (m *Metrics) RecordRequest(ctx context.Context, operation string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("status", status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordRows records the number of rows written for an entity set.
func (m *Metrics) RecordRows(ctx context.Context, entitySet string, n int) {
	if m == nil {
		return
	}
	m.rows.Add(ctx, int64(n), metric.WithAttributes(attribute.String("entity_set", entitySet)))
}

// RecordSchemaCache records a schema cache lookup.
func (m *Metrics) RecordSchemaCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.schemaCache.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
