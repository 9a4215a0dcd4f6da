// Package session holds the resources owned by one test scenario: the dummy
// interface captures are replayed onto, the agent instances started for it and
// the ports they hold.
//
// A Session is owned by a single goroutine and is not safe for concurrent use.
// Close must run whatever happened during the scenario; it releases every
// instance and brings the interface down and deletes it exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"pktharness/internal/infra/netdev"
	"pktharness/internal/orchestrator"
)

// Remover releases an instance. Implementations must be idempotent.
type Remover interface {
	StopAndRemove(ctx context.Context, id string) error
}

// Session is the resource scope of one scenario.
type Session struct {
	id    string
	iface string
	links netdev.Manager

	ports     map[string]int
	order     []string
	conflicts []string
	captures  map[string]struct{}

	closed bool
}

var _ orchestrator.Registry = (*Session)(nil)

// Open creates the dummy interface and brings it up. If bringing it up fails
// the half-created link is deleted again.
func Open(id, iface string, links netdev.Manager) (*Session, error) {
	if err := links.Add(iface); err != nil {
		return nil, fmt.Errorf("open session %s: %w", id, err)
	}
	if err := links.SetUp(iface); err != nil {
		return nil, errors.Join(fmt.Errorf("open session %s: %w", id, err), links.Delete(iface))
	}
	slog.Info("Session opened.", "session", id, "interface", iface)

	return &Session{
		id:       id,
		iface:    iface,
		links:    links,
		ports:    make(map[string]int),
		captures: make(map[string]struct{}),
	}, nil
}

func (s *Session) SessionID() string { return s.id }
func (s *Session) Interface() string { return s.iface }

// HasPort reports whether a tracked instance holds port.
func (s *Session) HasPort(port int) bool {
	for _, p := range s.ports {
		if p == port {
			return true
		}
	}
	return false
}

// Track records an instance and the port it holds. No two tracked instances
// may share a port.
func (s *Session) Track(id string, port int) error {
	if s.closed {
		return fmt.Errorf("track instance %s: session %s is closed", id, s.id)
	}
	if held, ok := s.ports[id]; ok {
		if held == port {
			return nil
		}
		return fmt.Errorf("track instance %s: already holds port %d", id, held)
	}
	if s.HasPort(port) {
		return fmt.Errorf("track instance %s on %d: %w", id, port, orchestrator.ErrPortInUse)
	}
	s.ports[id] = port
	s.order = append(s.order, id)
	return nil
}

// TrackConflict records an instance started on a port another instance holds.
// It is released on Close but never owns the port.
func (s *Session) TrackConflict(id string, port int) {
	slog.Debug("Tracking conflicting instance.", "session", s.id, "id", id, "port", port)
	s.conflicts = append(s.conflicts, id)
}

// Port returns the port held by id.
func (s *Session) Port(id string) (int, bool) {
	p, ok := s.ports[id]
	return p, ok
}

// Ports returns held ports in allocation order.
func (s *Session) Ports() []int {
	out := make([]int, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.ports[id])
	}
	return out
}

// Instances returns every instance the session must release, port holders
// first.
func (s *Session) Instances() []string {
	return append(slices.Clone(s.order), s.conflicts...)
}

// AddCapture records a replayed capture file name.
func (s *Session) AddCapture(name string) {
	s.captures[name] = struct{}{}
}

// Captures returns the replayed capture names, sorted.
func (s *Session) Captures() []string {
	out := make([]string, 0, len(s.captures))
	for name := range s.captures {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close releases every instance through r, then brings the interface down and
// deletes it. All steps run even if earlier ones fail; errors are joined.
// Closing twice is a no-op.
func (s *Session) Close(ctx context.Context, r Remover) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if r != nil {
		for _, id := range s.Instances() {
			if err := r.StopAndRemove(ctx, id); err != nil {
				slog.Warn("Failed to release instance.", "session", s.id, "id", id, "err", err)
				errs = append(errs, err)
			}
		}
	}
	if err := s.links.SetDown(s.iface); err != nil {
		errs = append(errs, err)
	}
	if err := s.links.Delete(s.iface); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close session %s: %w", s.id, err)
	}
	slog.Info("Session closed.", "session", s.id, "instances", len(s.Instances()))
	return nil
}
