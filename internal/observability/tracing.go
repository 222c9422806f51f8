package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrServiceName = attribute.Key("odata.service")
	AttrOperation   = attribute.Key("odata.operation")
	AttrEntitySet   = attribute.Key("odata.entity_set")
	AttrServiceRoot = attribute.Key("odata.service_root")
	AttrRowCount    = attribute.Key("odata.row_count")
	AttrQuery       = attribute.Key("odata.query")
)

// Tracer starts spans for feed operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

func newTracer(tracer trace.Tracer, serviceName string) *Tracer {
	return &Tracer{tracer: tracer, serviceName: serviceName}
}

// StartRequest starts the span of one feed request against the service root.
func (t *Tracer) StartRequest(ctx context.Context, operation, serviceRoot string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "odata."+operation,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			AttrServiceName.String(t.serviceName),
			AttrOperation.String(operation),
			AttrServiceRoot.String(serviceRoot),
		))
}

// StartFetch starts the span of loading submissions for an entity set.
func (t *Tracer) StartFetch(ctx context.Context, entitySet, rawQuery string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "odata.fetch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrEntitySet.String(entitySet),
			AttrQuery.String(rawQuery),
		))
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
