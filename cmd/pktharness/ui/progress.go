package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Progress prints one line per scenario step as its span starts and ends.
type Progress struct {
	provider *sdktrace.TracerProvider
}

// NewProgress returns a Progress writing to w.
func NewProgress(w io.Writer) *Progress {
	p := &stepPrinter{w: w}
	return &Progress{provider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(p))}
}

func (p *Progress) Tracer(name string) trace.Tracer {
	return p.provider.Tracer(name)
}

func (p *Progress) Close() {
	_ = p.provider.Shutdown(context.Background())
}

type stepPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *stepPrinter) OnStart(_ context.Context, span sdktrace.ReadWriteSpan) {
	if !span.Parent().IsValid() {
		p.printf("%s %s\n", Accent("●"), span.Name())
		return
	}
	p.printf("  %s %s\n", Muted("[->]"), span.Name())
}

func (p *stepPrinter) OnEnd(span sdktrace.ReadOnlySpan) {
	if !span.Parent().IsValid() {
		return
	}
	elapsed := span.EndTime().Sub(span.StartTime()).Round(time.Millisecond)
	status := span.Status()
	if status.Code == codes.Error {
		msg := strings.TrimSpace(status.Description)
		p.printf("  %s %s (%s)\n", ErrorStyle.Render("[x]"), span.Name(), msg)
		return
	}
	p.printf("  %s %s %s\n", SuccessStyle.Render("[ok]"), span.Name(), Muted(elapsed.String()))
}

func (p *stepPrinter) printf(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, a...)
}

func (p *stepPrinter) Shutdown(context.Context) error   { return nil }
func (p *stepPrinter) ForceFlush(context.Context) error { return nil }
