// Package orchestratortest provides an in-memory container runtime.
package orchestratortest

import (
	"context"
	"fmt"
	"slices"

	"pktharness/internal/orchestrator"
)

// Container is one fake container.
type Container struct {
	Config  orchestrator.RunConfig
	Status  string
	Removed bool
	Logs    []string
}

// Runtime is an in-memory orchestrator.Runtime. Containers start as
// "running" unless StatusOnRun says otherwise, with LogsOnRun as their logs.
type Runtime struct {
	Containers  map[string]*Container
	Order       []string
	StatusOnRun string
	LogsOnRun   []string

	RunErr     error
	InspectErr error
	StopErr    error

	Calls []string
	next  int
}

// NewRuntime returns an empty Runtime.
func NewRuntime() *Runtime {
	return &Runtime{Containers: make(map[string]*Container), StatusOnRun: "running"}
}

func (r *Runtime) Run(_ context.Context, cfg orchestrator.RunConfig) (string, error) {
	r.Calls = append(r.Calls, "Run")
	if r.RunErr != nil {
		return "", r.RunErr
	}
	r.next++
	id := fmt.Sprintf("%064x", r.next)
	r.Containers[id] = &Container{Config: cfg, Status: r.StatusOnRun, Logs: slices.Clone(r.LogsOnRun)}
	r.Order = append(r.Order, id)
	return id, nil
}

func (r *Runtime) Inspect(_ context.Context, id string) (orchestrator.ContainerState, error) {
	r.Calls = append(r.Calls, "Inspect")
	if r.InspectErr != nil {
		return orchestrator.ContainerState{}, r.InspectErr
	}
	c, ok := r.Containers[id]
	if !ok || c.Removed {
		return orchestrator.ContainerState{}, nil
	}
	return orchestrator.ContainerState{Exists: true, Status: c.Status}, nil
}

func (r *Runtime) Stop(_ context.Context, id string) error {
	r.Calls = append(r.Calls, "Stop")
	if r.StopErr != nil {
		return r.StopErr
	}
	if c, ok := r.Containers[id]; ok && !c.Removed {
		c.Status = "exited"
	}
	return nil
}

func (r *Runtime) Remove(_ context.Context, id string) error {
	r.Calls = append(r.Calls, "Remove")
	if c, ok := r.Containers[id]; ok {
		c.Removed = true
	}
	return nil
}

func (r *Runtime) Logs(_ context.Context, id string) ([]string, error) {
	r.Calls = append(r.Calls, "Logs")
	c, ok := r.Containers[id]
	if !ok {
		return nil, fmt.Errorf("no such container: %s", id)
	}
	return slices.Clone(c.Logs), nil
}

func (r *Runtime) Close() error { return nil }

// SetStatus overrides the status reported for id.
func (r *Runtime) SetStatus(id, status string) {
	if c, ok := r.Containers[id]; ok {
		c.Status = status
	}
}

// Live returns the ids that have not been removed.
func (r *Runtime) Live() []string {
	var out []string
	for _, id := range r.Order {
		if !r.Containers[id].Removed {
			out = append(out, id)
		}
	}
	return out
}
