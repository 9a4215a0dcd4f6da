// Package telemetry wraps a harness run and its steps in OpenTelemetry spans.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName     = "pktharness/scenario"
	PlanEventName  = "pktharness.plan"
	PlanStepsKey   = "pktharness.plan.steps"
	SessionKey     = "pktharness.session"
	InterfaceKey   = "pktharness.interface"
	defaultRunName = "run"
)

// Operation is the root span of one run.
type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
	steps  map[string]struct{}
}

// Begin opens the root span and announces the planned step names. A nil
// tracer falls back to the global provider.
func Begin(ctx context.Context, tracer trace.Tracer, name string, steps []string, attrs ...attribute.KeyValue) (*Operation, error) {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	planned := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		step = strings.TrimSpace(step)
		if step == "" {
			return nil, fmt.Errorf("begin operation: step %d has empty name", i)
		}
		if _, dup := planned[step]; dup {
			return nil, fmt.Errorf("begin operation: duplicate step %q", step)
		}
		planned[step] = struct{}{}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultRunName
	}
	spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	span.AddEvent(PlanEventName, trace.WithAttributes(attribute.StringSlice(PlanStepsKey, steps)))

	return &Operation{ctx: spanCtx, tracer: tracer, span: span, steps: planned}, nil
}

func (o *Operation) Context() context.Context {
	if o == nil {
		return context.Background()
	}
	return o.ctx
}

// Step runs fn inside a child span named id. id must have been planned.
func (o *Operation) Step(ctx context.Context, id string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	if o == nil || o.tracer == nil {
		return fn(ctx)
	}
	if _, ok := o.steps[id]; !ok {
		return fmt.Errorf("run step %q: not in plan", id)
	}
	if ctx == nil {
		ctx = o.ctx
	}

	stepCtx, span := o.tracer.Start(ctx, id, trace.WithAttributes(attrs...))
	defer span.End()

	if err := fn(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

// End closes the root span, marking it failed when err is non-nil.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}
