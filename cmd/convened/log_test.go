package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestTraceHandler_AddsSpanIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTraceHandler(slog.NewTextHandler(&buf, nil)))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.With("component", "test").InfoContext(ctx, "hello")

	out := buf.String()
	if !strings.Contains(out, "trace_id="+sc.TraceID().String()) {
		t.Fatalf("missing trace_id: %s", out)
	}
	if !strings.Contains(out, "span_id="+sc.SpanID().String()) {
		t.Fatalf("missing span_id: %s", out)
	}
}

func TestTraceHandler_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTraceHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "hello")

	if strings.Contains(buf.String(), "trace_id") {
		t.Fatalf("unexpected trace_id: %s", buf.String())
	}
}
