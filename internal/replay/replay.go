// Package replay pushes a stored packet capture onto an interface with
// tcpreplay and checks the tool's own account of what it sent.
package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrToolMissing means the replay binary is not installed. It is an
// environment problem, not a test failure.
var ErrToolMissing = errors.New("replay tool not found")

// Runner executes a command and returns its separated output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Injector replays captures.
type Injector struct {
	tool   string
	sudo   bool
	runner Runner
}

// New returns an Injector invoking tool, through sudo when useSudo is set.
func New(tool string, useSudo bool, runner Runner) *Injector {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Injector{tool: tool, sudo: useSudo, runner: runner}
}

// Command returns the argv used to replay path onto iface.
func (i *Injector) Command(iface, path string) []string {
	argv := []string{i.tool, "-i", iface, "-tK", path}
	if i.sudo {
		argv = append([]string{"sudo", "-n"}, argv...)
	}
	return argv
}

// Replay runs the tool, parses its report and enforces the counter
// invariant. A violated invariant is returned as an error wrapping
// ErrInvariant together with the parsed report.
func (i *Injector) Replay(ctx context.Context, iface, path string) (Report, error) {
	if _, err := os.Stat(path); err != nil {
		return Report{}, fmt.Errorf("capture file %s: %w", path, err)
	}

	argv := i.Command(iface, path)
	stdout, stderr, err := i.runner.Run(ctx, argv[0], argv[1:]...)
	if missing(stderr, err) {
		return Report{}, fmt.Errorf("%w: %s: %s", ErrToolMissing, i.tool, firstLine(stderr, err))
	}
	if err != nil {
		return Report{}, fmt.Errorf("replay %s on %s: %w: %s", path, iface, err, firstLine(stderr, nil))
	}

	report, err := ParseReport(stdout + "\n" + stderr)
	if err != nil {
		return Report{}, fmt.Errorf("replay %s: %w", path, err)
	}
	slog.Info("Replayed capture.", "file", path, "interface", iface,
		"attempted", report.Attempted, "successful", report.Successful, "failed", report.Failed)

	if err := report.Check(); err != nil {
		return report, fmt.Errorf("replay %s: %w", path, err)
	}
	return report, nil
}

func missing(stderr string, err error) bool {
	if strings.Contains(stderr, "command not found") {
		return true
	}
	return errors.Is(err, exec.ErrNotFound)
}

func firstLine(stderr string, err error) string {
	if line, _, _ := strings.Cut(strings.TrimSpace(stderr), "\n"); line != "" {
		return line
	}
	if err != nil {
		return err.Error()
	}
	return "no output"
}
