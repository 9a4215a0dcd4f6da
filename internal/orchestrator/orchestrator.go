// Package orchestrator starts, stops and inspects agent containers for a
// test session and aggregates their status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"pktharness/internal/config"
	"pktharness/internal/poll"
)

// Labels stamped on every container the harness starts.
const (
	LabelSession = "pktharness.session"
	LabelPort    = "pktharness.port"
	LabelRole    = "pktharness.role"
)

// ErrPortInUse is returned when a port is already bound to a tracked instance.
var ErrPortInUse = errors.New("port already tracked by session")

// Registry is the session-side record of started instances.
type Registry interface {
	SessionID() string
	Interface() string
	HasPort(port int) bool
	Track(id string, port int) error
	TrackConflict(id string, port int)
}

// NameSource mints container names.
type NameSource interface {
	UniqueName(prefix string) (string, error)
}

// Orchestrator drives a Runtime on behalf of one session.
type Orchestrator struct {
	rt    Runtime
	names NameSource
	reg   Registry
	cfg   config.Config
	clock poll.Clock
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the clock used by status polling.
func WithClock(c poll.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// New returns an Orchestrator bound to reg.
func New(rt Runtime, names NameSource, reg Registry, cfg config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{rt: rt, names: names, reg: reg, cfg: cfg, clock: poll.RealClock{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Command builds the agent command line. The port flag is only passed when it
// differs from the agent's built-in default.
func (o *Orchestrator) Command(port int, role Role) []string {
	cmd := []string{o.cfg.AgentBinary}
	if port != o.cfg.DefaultPort {
		cmd = append(cmd, "-p", strconv.Itoa(port))
	}
	if role == RoleAdmin {
		cmd = append(cmd, "--admin-api")
	}
	return append(cmd, o.reg.Interface())
}

// Start runs a detached instance on the host network bound to port. The
// instance is tracked by the session only once the runtime accepted it.
func (o *Orchestrator) Start(ctx context.Context, image string, port int, role Role) (Instance, error) {
	if o.reg.HasPort(port) {
		return Instance{}, fmt.Errorf("start instance on %d: %w", port, ErrPortInUse)
	}
	inst, err := o.run(ctx, image, port, role)
	if err != nil {
		return Instance{}, err
	}
	if err := o.reg.Track(inst.ID, port); err != nil {
		return Instance{}, errors.Join(err, o.StopAndRemove(ctx, inst.ID))
	}
	return inst, nil
}

// StartConflicting runs an instance on a port the session already holds, to
// exercise the agent's behaviour when its port is unavailable. The instance is
// kept for cleanup but does not claim the port.
func (o *Orchestrator) StartConflicting(ctx context.Context, image string, port int, role Role) (Instance, error) {
	if !o.reg.HasPort(port) {
		return Instance{}, fmt.Errorf("start conflicting instance: port %d is not held by this session", port)
	}
	inst, err := o.run(ctx, image, port, role)
	if err != nil {
		return Instance{}, err
	}
	o.reg.TrackConflict(inst.ID, port)
	return inst, nil
}

func (o *Orchestrator) run(ctx context.Context, image string, port int, role Role) (Instance, error) {
	role, err := ParseRole(string(role))
	if err != nil {
		return Instance{}, err
	}
	if strings.TrimSpace(image) == "" {
		image = o.cfg.Image
	}
	name, err := o.names.UniqueName(o.cfg.ContainerNamePrefix)
	if err != nil {
		return Instance{}, fmt.Errorf("name instance: %w", err)
	}

	cmd := o.Command(port, role)
	id, err := o.rt.Run(ctx, RunConfig{
		Name:        name,
		Image:       image,
		Cmd:         cmd,
		HostNetwork: true,
		Labels: map[string]string{
			LabelSession: o.reg.SessionID(),
			LabelPort:    strconv.Itoa(port),
			LabelRole:    string(role),
		},
	})
	if err != nil {
		return Instance{}, fmt.Errorf("run instance %s: %w", name, err)
	}
	slog.Info("Started agent instance.", "id", shortID(id), "name", name, "port", port, "role", role, "cmd", cmd)

	return Instance{ID: id, Name: name, Image: image, Role: role, Port: port, Status: StatusCreated}, nil
}

// StopAndRemove stops and removes an instance. Missing instances are not an
// error, so it is safe on partially built sessions.
func (o *Orchestrator) StopAndRemove(ctx context.Context, id string) error {
	if err := o.rt.Stop(ctx, id); err != nil {
		return fmt.Errorf("stop instance %s: %w", shortID(id), err)
	}
	if err := o.rt.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove instance %s: %w", shortID(id), err)
	}
	slog.Debug("Removed agent instance.", "id", shortID(id))
	return nil
}

// Status inspects an instance once.
func (o *Orchestrator) Status(ctx context.Context, id string) (Status, error) {
	state, err := o.rt.Inspect(ctx, id)
	if err != nil {
		return StatusUnknown, fmt.Errorf("inspect instance %s: %w", shortID(id), err)
	}
	if !state.Exists {
		return StatusUnknown, nil
	}
	return ParseStatus(state.Status), nil
}

// CountWithStatus polls every id until exactly expected of them report
// target, or the poll budget runs out. The last matching set is returned
// either way so the caller can assert on it.
func (o *Orchestrator) CountWithStatus(ctx context.Context, ids []string, target Status, expected int) ([]string, bool, error) {
	probe := func(ctx context.Context) ([]string, bool, error) {
		var matched []string
		for _, id := range ids {
			status, err := o.Status(ctx, id)
			if err != nil {
				return nil, false, err
			}
			if status == target && !slices.Contains(matched, id) {
				matched = append(matched, id)
			}
		}
		return matched, len(matched) == expected, nil
	}

	opts := poll.Options{Wait: o.cfg.Poll.Wait, Timeout: o.cfg.Poll.Timeout, Clock: o.clock}
	out, err := poll.Until(ctx, opts, nil, poll.WithPolicy(poll.RetryOnMismatch, nil, probe))
	if err != nil {
		return out.Value, false, err
	}
	if !out.Succeeded {
		slog.Warn("Instance status count not reached.", "status", target, "want", expected, "got", len(out.Value), "attempts", out.Attempts)
	}
	return out.Value, out.Succeeded, nil
}

// Logs returns the log lines of an instance.
func (o *Orchestrator) Logs(ctx context.Context, id string) ([]string, error) {
	lines, err := o.rt.Logs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("logs of instance %s: %w", shortID(id), err)
	}
	return lines, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
