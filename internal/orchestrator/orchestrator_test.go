package orchestrator_test

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"testing"
	"time"

	"pktharness/internal/config"
	"pktharness/internal/orchestrator"
	"pktharness/internal/orchestrator/orchestratortest"
	"pktharness/internal/poll/polltest"
)

type fakeRegistry struct {
	iface     string
	ports     map[string]int
	conflicts []string
}

func newRegistry() *fakeRegistry {
	return &fakeRegistry{iface: "pktdummyTEST", ports: make(map[string]int)}
}

func (r *fakeRegistry) SessionID() string { return "session-1" }
func (r *fakeRegistry) Interface() string { return r.iface }

func (r *fakeRegistry) HasPort(port int) bool {
	for _, p := range r.ports {
		if p == port {
			return true
		}
	}
	return false
}

func (r *fakeRegistry) Track(id string, port int) error {
	if r.HasPort(port) {
		return orchestrator.ErrPortInUse
	}
	r.ports[id] = port
	return nil
}

func (r *fakeRegistry) TrackConflict(id string, _ int) { r.conflicts = append(r.conflicts, id) }

type counterNames struct{ n int }

func (c *counterNames) UniqueName(prefix string) (string, error) {
	c.n++
	return prefix + strconv.Itoa(c.n), nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Poll.Wait = 100 * time.Millisecond
	cfg.Poll.Timeout = time.Second
	return cfg
}

func newOrchestrator(rt orchestrator.Runtime, reg orchestrator.Registry) *orchestrator.Orchestrator {
	return orchestrator.New(rt, &counterNames{}, reg, testConfig(), orchestrator.WithClock(polltest.NewClock()))
}

func TestCommand(t *testing.T) {
	o := newOrchestrator(orchestratortest.NewRuntime(), newRegistry())
	tests := []struct {
		name string
		port int
		role orchestrator.Role
		want []string
	}{
		{"default port user", config.DefaultAgentPort, orchestrator.RoleUser, []string{"pktvisord", "pktdummyTEST"}},
		{"custom port user", 4242, orchestrator.RoleUser, []string{"pktvisord", "-p", "4242", "pktdummyTEST"}},
		{"default port admin", config.DefaultAgentPort, orchestrator.RoleAdmin, []string{"pktvisord", "--admin-api", "pktdummyTEST"}},
		{"custom port admin", 4242, orchestrator.RoleAdmin, []string{"pktvisord", "-p", "4242", "--admin-api", "pktdummyTEST"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := o.Command(tt.port, tt.role); !slices.Equal(got, tt.want) {
				t.Fatalf("Command = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStartTracksInstanceAfterRun(t *testing.T) {
	rt := orchestratortest.NewRuntime()
	reg := newRegistry()
	o := newOrchestrator(rt, reg)

	inst, err := o.Start(context.Background(), "", 5000, orchestrator.RoleAdmin)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reg.ports[inst.ID] != 5000 {
		t.Fatalf("registry = %v, want %s -> 5000", reg.ports, inst.ID)
	}
	c := rt.Containers[inst.ID]
	if !c.Config.HostNetwork {
		t.Fatal("container must share the host network")
	}
	if c.Config.Image != "ns1labs/pktvisor" {
		t.Fatalf("Image = %q, want configured default", c.Config.Image)
	}
	if c.Config.Name != "pktvisor-test1" {
		t.Fatalf("Name = %q", c.Config.Name)
	}
	if c.Config.Labels[orchestrator.LabelSession] != "session-1" {
		t.Fatalf("Labels = %v", c.Config.Labels)
	}
}

func TestStartRejectsInvalidRole(t *testing.T) {
	rt := orchestratortest.NewRuntime()
	reg := newRegistry()
	o := newOrchestrator(rt, reg)

	_, err := o.Start(context.Background(), "img", 5000, orchestrator.Role("root"))
	if !errors.Is(err, orchestrator.ErrInvalidRole) {
		t.Fatalf("err = %v, want ErrInvalidRole", err)
	}
	if len(rt.Calls) != 0 || len(reg.ports) != 0 {
		t.Fatalf("calls = %v, ports = %v; nothing should run", rt.Calls, reg.ports)
	}
}

func TestStartDoesNotTrackFailedRun(t *testing.T) {
	rt := orchestratortest.NewRuntime()
	rt.RunErr = errors.New("image not found")
	reg := newRegistry()
	o := newOrchestrator(rt, reg)

	if _, err := o.Start(context.Background(), "img", 5000, orchestrator.RoleUser); !errors.Is(err, rt.RunErr) {
		t.Fatalf("err = %v, want %v", err, rt.RunErr)
	}
	if len(reg.ports) != 0 {
		t.Fatalf("ports = %v, want empty", reg.ports)
	}
}

func TestStartRefusesTrackedPort(t *testing.T) {
	rt := orchestratortest.NewRuntime()
	reg := newRegistry()
	o := newOrchestrator(rt, reg)

	if _, err := o.Start(context.Background(), "img", 5000, orchestrator.RoleUser); err != nil {
		t.Fatal(err)
	}
	_, err := o.Start(context.Background(), "img", 5000, orchestrator.RoleUser)
	if !errors.Is(err, orchestrator.ErrPortInUse) {
		t.Fatalf("err = %v, want ErrPortInUse", err)
	}
	if len(rt.Order) != 1 {
		t.Fatalf("containers = %d, want 1", len(rt.Order))
	}
}

func TestStartConflictingKeepsPortOwnership(t *testing.T) {
	rt := orchestratortest.NewRuntime()
	reg := newRegistry()
	o := newOrchestrator(rt, reg)
	ctx := context.Background()

	if _, err := o.StartConflicting(ctx, "img", 5000, orchestrator.RoleUser); err == nil {
		t.Fatal("expected error for a port the session does not hold")
	}

	first, err := o.Start(ctx, "img", 5000, orchestrator.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.StartConflicting(ctx, "img", 5000, orchestrator.RoleUser)
	if err != nil {
		t.Fatalf("StartConflicting: %v", err)
	}
	if reg.ports[first.ID] != 5000 || len(reg.ports) != 1 {
		t.Fatalf("ports = %v", reg.ports)
	}
	if !slices.Equal(reg.conflicts, []string{second.ID}) {
		t.Fatalf("conflicts = %v", reg.conflicts)
	}
}

func TestStopAndRemoveIsIdempotent(t *testing.T) {
	rt := orchestratortest.NewRuntime()
	o := newOrchestrator(rt, newRegistry())
	ctx := context.Background()

	inst, err := o.Start(ctx, "img", 5000, orchestrator.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := o.StopAndRemove(ctx, inst.ID); err != nil {
			t.Fatalf("StopAndRemove #%d: %v", i+1, err)
		}
	}
	if err := o.StopAndRemove(ctx, "never-existed"); err != nil {
		t.Fatalf("StopAndRemove on unknown id: %v", err)
	}
}

func TestStatus(t *testing.T) {
	rt := orchestratortest.NewRuntime()
	o := newOrchestrator(rt, newRegistry())
	ctx := context.Background()

	inst, err := o.Start(ctx, "img", 5000, orchestrator.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	for raw, want := range map[string]orchestrator.Status{
		"running":    orchestrator.StatusRunning,
		"exited":     orchestrator.StatusExited,
		"created":    orchestrator.StatusCreated,
		"restarting": orchestrator.StatusUnknown,
	} {
		rt.SetStatus(inst.ID, raw)
		got, err := o.Status(ctx, inst.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("Status(%q) = %q, want %q", raw, got, want)
		}
	}

	got, err := o.Status(ctx, "missing")
	if err != nil || got != orchestrator.StatusUnknown {
		t.Fatalf("Status(missing) = %q, %v", got, err)
	}

	rt.InspectErr = errors.New("daemon gone")
	if _, err := o.Status(ctx, inst.ID); !errors.Is(err, rt.InspectErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestCountWithStatus(t *testing.T) {
	rt := orchestratortest.NewRuntime()
	o := newOrchestrator(rt, newRegistry())
	ctx := context.Background()

	var ids []string
	for port := 5000; port < 5003; port++ {
		inst, err := o.Start(ctx, "img", port, orchestrator.RoleUser)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, inst.ID)
	}
	rt.SetStatus(ids[2], "exited")

	matched, ok, err := o.CountWithStatus(ctx, ids, orchestrator.StatusRunning, 2)
	if err != nil {
		t.Fatalf("CountWithStatus: %v", err)
	}
	if !ok {
		t.Fatal("expected count to be reached")
	}
	if !slices.Equal(matched, ids[:2]) {
		t.Fatalf("matched = %v, want %v", matched, ids[:2])
	}
}

func TestCountWithStatusReturnsLastSetOnTimeout(t *testing.T) {
	rt := orchestratortest.NewRuntime()
	o := newOrchestrator(rt, newRegistry())
	ctx := context.Background()

	inst, err := o.Start(ctx, "img", 5000, orchestrator.RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	matched, ok, err := o.CountWithStatus(ctx, []string{inst.ID}, orchestrator.StatusRunning, 2)
	if err != nil {
		t.Fatalf("CountWithStatus: %v", err)
	}
	if ok {
		t.Fatal("count of 2 cannot be reached with one instance")
	}
	if !slices.Equal(matched, []string{inst.ID}) {
		t.Fatalf("matched = %v", matched)
	}
}

func TestParseRole(t *testing.T) {
	if r, err := orchestrator.ParseRole(" Admin "); err != nil || r != orchestrator.RoleAdmin {
		t.Fatalf("ParseRole = %q, %v", r, err)
	}
	if _, err := orchestrator.ParseRole("guest"); !errors.Is(err, orchestrator.ErrInvalidRole) {
		t.Fatalf("err = %v", err)
	}
}
