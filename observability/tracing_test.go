package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return NewTracerFrom(tp), sr
}

func attr(kvs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestSyncSpan(t *testing.T) {
	tr, sr := newRecordingTracer()

	_, span := tr.StartSyncSpan(context.Background(), "job_1", "src_1", "incremental")
	tr.EndSyncSpan(span, 12, 1, nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "convene.sync" {
		t.Fatalf("name = %q", s.Name())
	}
	if v, ok := attr(s.Attributes(), "convene.processed"); !ok || v.AsInt64() != 12 {
		t.Fatalf("processed attribute = %v", v)
	}
	if s.Status().Code == codes.Error {
		t.Fatal("successful sync marked as error")
	}
}

func TestWebhookSpanRecordsError(t *testing.T) {
	tr, sr := newRecordingTracer()

	_, span := tr.StartWebhookSpan(context.Background(), "eventbrite")
	tr.EndWebhookSpan(span, 500, errors.New("boom"))

	s := sr.Ended()[0]
	if s.Name() != "convene.webhook" {
		t.Fatalf("name = %q", s.Name())
	}
	if s.Status().Code != codes.Error {
		t.Fatalf("status = %v, want error", s.Status().Code)
	}
	if v, _ := attr(s.Attributes(), "http.status_code"); v.AsInt64() != 500 {
		t.Fatalf("status code attribute = %v", v)
	}
}

func TestEventSpanNestsUnderSync(t *testing.T) {
	tr, sr := newRecordingTracer()

	ctx, parent := tr.StartSyncSpan(context.Background(), "job_1", "src_1", "incremental")
	_, child := tr.StartEventSpan(ctx, "src_1")
	tr.EndEventSpan(child, "evt_1", true, 0, nil)
	tr.EndSyncSpan(parent, 1, 0, nil)

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Fatal("pipeline span is not a child of the sync span")
	}
}

func TestNilTracerAndMetricsAreNoops(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.StartSyncSpan(context.Background(), "job", "src", "full")
	tr.EndSyncSpan(span, 0, 0, nil)
	if ctx == nil {
		t.Fatal("nil tracer returned nil context")
	}

	var m *Metrics
	m.SyncStarted()
	m.RecordSync("completed", 1)
	m.RecordEvent(true, false, 2)
	m.RecordWebhook("meetup", "processed")
	m.RecordCleanup("webhook_records", 3)
}
