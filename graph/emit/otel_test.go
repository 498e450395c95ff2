package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

// TestOTelEmitter_Emit verifies single event emission creates spans.
func TestOTelEmitter_Emit(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("test")
	emitter := NewOTelEmitter(tracer)

	event := Event{
		ThreadID: "t1",
		Seq:      2,
		NodeID:   "review",
		Msg:      "node completed",
		Meta: map[string]any{
			"next":     "draft",
			"attempts": 3,
		},
	}
	emitter.Emit(event)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name != "node completed" {
		t.Errorf("span name = %q, want %q", span.Name, "node completed")
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["stategraph.thread_id"]; got != "t1" {
		t.Errorf("thread_id = %v, want %q", got, "t1")
	}
	if got := attrs["stategraph.seq"]; got != int64(2) {
		t.Errorf("seq = %v, want %d", got, 2)
	}
	if got := attrs["stategraph.node_id"]; got != "review" {
		t.Errorf("node_id = %v, want %q", got, "review")
	}
	if got := attrs["stategraph.meta.next"]; got != "draft" {
		t.Errorf("meta.next = %v, want %q", got, "draft")
	}
	if got := attrs["stategraph.meta.attempts"]; got != int64(3) {
		t.Errorf("meta.attempts = %v, want %d", got, 3)
	}
}

// TestOTelEmitter_ErrorStatus verifies error metadata sets span status.
func TestOTelEmitter_ErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))

	emitter.Emit(Event{
		ThreadID: "t1",
		NodeID:   "flaky",
		Msg:      "node failed",
		Meta:     map[string]any{"error": "boom"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "boom" {
		t.Errorf("description = %q, want %q", spans[0].Status.Description, "boom")
	}
}

// TestOTelEmitter_EmitBatch verifies batch emission under one context.
func TestOTelEmitter_EmitBatch(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))

	events := []Event{
		{ThreadID: "t1", Seq: 1, NodeID: "a", Msg: "node completed"},
		{ThreadID: "t1", Seq: 2, NodeID: "b", Msg: "node completed"},
		{ThreadID: "t1", Seq: 3, NodeID: "c", Msg: "node completed"},
	}
	emitter.EmitBatch(context.Background(), events)

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
}
