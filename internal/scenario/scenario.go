// Package scenario runs one end-to-end harness scenario: it opens a session,
// starts agent instances, replays captures, checks the agents' metrics and
// expectations, and always tears the session down.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pktharness/internal/infra/sqlite"
	"pktharness/internal/metrics"
	"pktharness/internal/orchestrator"
	"pktharness/internal/replay"
)

// PortMode selects how an instance's port is chosen.
type PortMode string

const (
	// PortDefault uses the agent's built-in port.
	PortDefault PortMode = "default"
	// PortAvailable picks a free port not used by the session.
	PortAvailable PortMode = "available"
	// PortConflicting reuses the most recently allocated port.
	PortConflicting PortMode = "conflicting"
)

// InstanceSpec describes one agent instance to start.
type InstanceSpec struct {
	Role  orchestrator.Role `yaml:"role"`
	Port  PortMode          `yaml:"port"`
	Image string            `yaml:"image,omitempty"`
}

// StatusExpectation requires exactly Count instances in Status.
type StatusExpectation struct {
	Status orchestrator.Status `yaml:"status"`
	Count  int                 `yaml:"count"`
}

// LogExpectation requires a log record of instance Instance (index into
// Scenario.Instances) with message Message and NameKey == Name.
type LogExpectation struct {
	Instance int    `yaml:"instance"`
	Message  string `yaml:"message"`
	Name     string `yaml:"name"`
	NameKey  string `yaml:"name_key"`
}

// Scenario is the declarative input of Runner.Run.
type Scenario struct {
	Name      string         `yaml:"name"`
	Instances []InstanceSpec `yaml:"instances"`
	Captures  []string       `yaml:"captures"`
	// Endpoints defaults to metrics.BaseEndpoints.
	Endpoints []string `yaml:"endpoints,omitempty"`
	// Policies adds the window endpoints of each named policy.
	Policies        []string            `yaml:"policies,omitempty"`
	Prometheus      bool                `yaml:"prometheus,omitempty"`
	SkipMetrics     bool                `yaml:"skip_metrics,omitempty"`
	EndpointTimeout time.Duration       `yaml:"endpoint_timeout,omitempty"`
	ExpectStatus    []StatusExpectation `yaml:"expect_status,omitempty"`
	ExpectLogs      []LogExpectation    `yaml:"expect_logs,omitempty"`
}

// DefaultEndpointTimeout bounds each endpoint check.
const DefaultEndpointTimeout = 10 * time.Second

func (s Scenario) endpoints() []string {
	eps := s.Endpoints
	if len(eps) == 0 {
		eps = metrics.BaseEndpoints()
	}
	for _, p := range s.Policies {
		eps = append(eps, metrics.PolicyWindowEndpoints(p)...)
	}
	return eps
}

func (s Scenario) endpointTimeout() time.Duration {
	if s.EndpointTimeout > 0 {
		return s.EndpointTimeout
	}
	return DefaultEndpointTimeout
}

// Validate checks the scenario before any resource is created.
func (s Scenario) Validate() error {
	if len(s.Instances) == 0 {
		return fmt.Errorf("scenario %q: no instances", s.Name)
	}
	for i, inst := range s.Instances {
		if _, err := orchestrator.ParseRole(string(inst.Role)); err != nil {
			return fmt.Errorf("scenario %q instance %d: %w", s.Name, i, err)
		}
		switch inst.Port {
		case PortDefault, PortAvailable, "":
		case PortConflicting:
			if i == 0 {
				return fmt.Errorf("scenario %q instance %d: conflicting port needs an earlier instance", s.Name, i)
			}
		default:
			return fmt.Errorf("scenario %q instance %d: unknown port mode %q", s.Name, i, inst.Port)
		}
	}
	for i, l := range s.ExpectLogs {
		if l.Instance < 0 || l.Instance >= len(s.Instances) {
			return fmt.Errorf("scenario %q log expectation %d: instance %d out of range", s.Name, i, l.Instance)
		}
	}
	return nil
}

// EndpointResult is a metrics check against one instance.
type EndpointResult struct {
	Instance string
	metrics.Result
}

// Result is everything observed during a run.
type Result struct {
	Session   string
	Interface string
	Instances []orchestrator.Instance
	Captures  []string
	Reports   []replay.Report
	Endpoints []EndpointResult
	StartedAt time.Time
	Duration  time.Duration
}

// AssertionError reports an observed value that differs from the expected one.
type AssertionError struct {
	Check    string
	Expected any
	Actual   any
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %v, got %v", e.Check, e.Expected, e.Actual)
}

func (r Result) journalEntry(err error) sqlite.Run {
	run := sqlite.Run{
		Session:   r.Session,
		Interface: r.Interface,
		Captures:  r.Captures,
		Outcome:   outcome(err),
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
	}
	if err != nil {
		run.Error = err.Error()
	}
	for _, inst := range r.Instances {
		run.Instances = append(run.Instances, sqlite.RunInstance{
			Name:   inst.Name,
			Role:   string(inst.Role),
			Port:   inst.Port,
			Status: string(inst.Status),
		})
	}
	return run
}

// LoadFile reads a scenario from a YAML file.
func LoadFile(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, sc.Validate()
}
