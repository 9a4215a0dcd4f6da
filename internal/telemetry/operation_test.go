package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestBeginAndStepSuccess(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := Begin(context.Background(), tracer, "scenario", []string{"allocate", "start"},
		attribute.String(SessionKey, "s1"))
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := op.Step(op.Context(), "allocate", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	op.End(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended span count = %d, want 2", len(spans))
	}
	root := findSpanByName(spans, "scenario")
	if root == nil {
		t.Fatal("missing root span")
	}
	if len(root.Events()) == 0 || root.Events()[0].Name != PlanEventName {
		t.Fatalf("root events = %v", root.Events())
	}
	child := findSpanByName(spans, "allocate")
	if child == nil {
		t.Fatal("missing step span")
	}
	if child.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Fatalf("step parent = %s, want %s", child.Parent().SpanID(), root.SpanContext().SpanID())
	}
}

func TestStepFailureSetsErrorStatus(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := Begin(context.Background(), tracer, "scenario", []string{"replay"})
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if err := op.Step(op.Context(), "replay", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Step() error = %v, want boom", err)
	}
	op.End(boom)

	for _, name := range []string{"replay", "scenario"} {
		span := findSpanByName(recorder.Ended(), name)
		if span == nil {
			t.Fatalf("missing span %s", name)
		}
		if span.Status().Code != codes.Error || span.Status().Description != "boom" {
			t.Fatalf("%s status = %+v", name, span.Status())
		}
	}
}

func TestBeginRejectsBadPlan(t *testing.T) {
	t.Parallel()

	tracer, _ := newTestTracer()
	if _, err := Begin(context.Background(), tracer, "scenario", []string{"start", "start"}); err == nil {
		t.Fatal("duplicate step should fail")
	}
	op, err := Begin(context.Background(), tracer, "scenario", []string{"start"})
	if err != nil {
		t.Fatal(err)
	}
	if err := op.Step(op.Context(), "metrics", func(context.Context) error { return nil }); err == nil {
		t.Fatal("unplanned step should fail")
	}
}

func newTestTracer() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return provider.Tracer("telemetry-test"), recorder
}

func findSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}
