package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/convene"

// Tracer provides OpenTelemetry tracing for convene. A nil *Tracer starts
// no spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return NewTracerFrom(otel.GetTracerProvider())
}

// NewTracerFrom creates a tracer from tp.
func NewTracerFrom(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartSyncSpan starts a span for one sync job. srcID is empty for full
// sweeps.
func (t *Tracer) StartSyncSpan(ctx context.Context, jobID, srcID, jobType string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "convene.sync",
		trace.WithAttributes(
			attribute.String("convene.job_id", jobID),
			attribute.String("convene.source_id", srcID),
			attribute.String("convene.job_type", jobType),
		),
	)
}

// EndSyncSpan ends a sync span with the job counters.
func (t *Tracer) EndSyncSpan(span trace.Span, processed, failed int, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("convene.processed", processed),
		attribute.Int("convene.failed", failed),
	)
	end(span, err)
}

// StartWebhookSpan starts a span for one webhook delivery.
func (t *Tracer) StartWebhookSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "convene.webhook",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("convene.provider", provider)),
	)
}

// EndWebhookSpan ends a webhook span with its HTTP status.
func (t *Tracer) EndWebhookSpan(span trace.Span, statusCode int, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	end(span, err)
}

// StartEventSpan starts a span for one pipeline pass.
func (t *Tracer) StartEventSpan(ctx context.Context, srcID string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "convene.pipeline.event",
		trace.WithAttributes(attribute.String("convene.source_id", srcID)),
	)
}

// EndEventSpan ends a pipeline span.
func (t *Tracer) EndEventSpan(span trace.Span, eventID string, created bool, duplicates int, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.String("convene.event_id", eventID),
		attribute.Bool("convene.created", created),
		attribute.Int("convene.duplicates", duplicates),
	)
	end(span, err)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
