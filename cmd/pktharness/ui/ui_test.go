package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.opentelemetry.io/otel/codes"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	m.Run()
}

func TestKeyValuesAligns(t *testing.T) {
	out := KeyValues("  ", KV("Session", "abc"), KV("Interface", "pktdummyX"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if strings.Index(lines[0], "abc") != strings.Index(lines[1], "pktdummyX") {
		t.Fatalf("values not aligned:\n%s", out)
	}
}

func TestTableContainsCells(t *testing.T) {
	out := Table([]string{"ENDPOINT", "STATUS"}, [][]string{{"policies", "200"}})
	for _, want := range []string{"ENDPOINT", "policies", "200"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestProgressPrintsSteps(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	tracer := p.Tracer("test")

	ctx, root := tracer.Start(context.Background(), "scenario smoke")
	_, ok := tracer.Start(ctx, "allocate")
	ok.End()
	_, bad := tracer.Start(ctx, "replay")
	bad.RecordError(errors.New("tool missing"))
	bad.SetStatus(codes.Error, "tool missing")
	bad.End()
	root.End()
	p.Close()

	out := buf.String()
	for _, want := range []string{"scenario smoke", "[->] allocate", "[ok] allocate", "[x] replay (tool missing)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
