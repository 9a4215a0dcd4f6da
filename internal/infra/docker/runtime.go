// Package docker implements the orchestrator runtime on the Docker Engine API.
package docker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"pktharness/internal/orchestrator"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

var _ orchestrator.Runtime = (*Runtime)(nil)

// Runtime implements orchestrator.Runtime using the Docker Engine API.
type Runtime struct {
	cli client.APIClient
}

// NewRuntime creates a Runtime with a Docker client from the environment.
func NewRuntime() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Runtime{cli: cli}, nil
}

// NewRuntimeFromClient wraps an existing Docker client.
func NewRuntimeFromClient(cli client.APIClient) *Runtime {
	return &Runtime{cli: cli}
}

// WaitReady blocks until the daemon answers a ping.
func (r *Runtime) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		_, err := r.cli.Ping(ctx)
		if err == nil {
			return nil
		}
		if !client.IsErrConnectionFailed(err) {
			return fmt.Errorf("connect to docker daemon: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run creates and starts a detached container. If the image is not present
// locally it is pulled and the create retried.
func (r *Runtime) Run(ctx context.Context, cfg orchestrator.RunConfig) (string, error) {
	cc := &container.Config{
		Image:  cfg.Image,
		Cmd:    cfg.Cmd,
		Labels: cfg.Labels,
	}
	hc := &container.HostConfig{}
	if cfg.HostNetwork {
		hc.NetworkMode = container.NetworkMode("host")
	}

	resp, err := r.cli.ContainerCreate(ctx, cc, hc, nil, (*ocispec.Platform)(nil), cfg.Name)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return "", fmt.Errorf("create container: %w", err)
		}
		if err := r.pullImage(ctx, cfg.Image); err != nil {
			return "", err
		}
		if resp, err = r.cli.ContainerCreate(ctx, cc, hc, nil, nil, cfg.Name); err != nil {
			return "", fmt.Errorf("create container after pull: %w", err)
		}
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Leave nothing behind for a start that never happened.
		_ = r.Remove(ctx, resp.ID)
		return "", fmt.Errorf("start container: %w", err)
	}
	return resp.ID, nil
}

func (r *Runtime) pullImage(ctx context.Context, img string) error {
	slog.Info("Pulling image.", "image", img)
	rc, err := r.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull image %s: read response: %w", img, err)
	}
	return nil
}

// Inspect reports whether the container exists and its raw status.
func (r *Runtime) Inspect(ctx context.Context, id string) (orchestrator.ContainerState, error) {
	info, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return orchestrator.ContainerState{Exists: false}, nil
		}
		return orchestrator.ContainerState{}, fmt.Errorf("inspect container %q: %w", id, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return orchestrator.ContainerState{Exists: true}, nil
	}
	return orchestrator.ContainerState{Exists: true, Status: string(info.State.Status)}, nil
}

// Stop stops a container; a missing container is not an error.
func (r *Runtime) Stop(ctx context.Context, id string) error {
	if err := r.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return nil
}

// Remove force-removes a container; a missing container is not an error.
func (r *Runtime) Remove(ctx context.Context, id string) error {
	if err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// Logs returns stdout and stderr lines of a container, stdout first.
func (r *Runtime) Logs(ctx context.Context, id string) ([]string, error) {
	rc, err := r.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("container logs %q: %w", id, err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return nil, fmt.Errorf("demux container logs %q: %w", id, err)
	}
	return append(splitLines(&stdout), splitLines(&stderr)...), nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}

func splitLines(r io.Reader) []string {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
