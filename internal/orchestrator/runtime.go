package orchestrator

import "context"

// RunConfig describes one detached agent container.
type RunConfig struct {
	Name        string
	Image       string
	Cmd         []string
	HostNetwork bool
	Labels      map[string]string
}

// ContainerState is a point-in-time view of a container.
type ContainerState struct {
	Exists bool
	Status string // raw runtime status, mapped through ParseStatus
}

// Runtime is the container runtime the orchestrator drives. Stop and Remove
// must treat a missing container as success.
type Runtime interface {
	Run(ctx context.Context, cfg RunConfig) (id string, err error)
	Inspect(ctx context.Context, id string) (ContainerState, error)
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	Logs(ctx context.Context, id string) ([]string, error)
	Close() error
}
