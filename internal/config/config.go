// Package config holds the harness configuration.
//
// A Config is built once per process (defaults, then an optional YAML file,
// then CLI overrides) and passed by value into every component constructor.
// Nothing in the harness reads a package-level configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAgentPort is the port the agent binds when no -p flag is given.
const DefaultAgentPort = 10853

// Poll configures the retry budget shared by the polling call sites.
type Poll struct {
	Wait        time.Duration `yaml:"wait"`         // sleep between probe attempts
	Timeout     time.Duration `yaml:"timeout"`      // total budget per poll
	RequestWait time.Duration `yaml:"request_wait"` // sleep between HTTP attempts
}

// Config is the full harness configuration.
type Config struct {
	Image               string        `yaml:"image"`
	AgentBinary         string        `yaml:"agent_binary"`
	DefaultPort         int           `yaml:"default_port"`
	Interface           string        `yaml:"interface,omitempty"` // fixed name; empty means random per session
	InterfacePrefix     string        `yaml:"interface_prefix"`
	ContainerNamePrefix string        `yaml:"container_name_prefix"`
	NameSuffixLength    int           `yaml:"name_suffix_length"`
	PortAttempts        int           `yaml:"port_attempts"`
	APIHost             string        `yaml:"api_host"`
	SchemaFileName      string        `yaml:"schema_file_name"`
	DataDir             string        `yaml:"data_dir"`
	ReplayTool          string        `yaml:"replay_tool"`
	UseSudo             bool          `yaml:"use_sudo"`
	StartupGrace        time.Duration `yaml:"startup_grace"`
	Poll                Poll          `yaml:"poll"`
	HistoryPath         string        `yaml:"history_path,omitempty"`
	LogLevel            string        `yaml:"log_level"`
	LogFormat           string        `yaml:"log_format"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Image:               "ns1labs/pktvisor",
		AgentBinary:         "pktvisord",
		DefaultPort:         DefaultAgentPort,
		InterfacePrefix:     "pktdummy",
		ContainerNamePrefix: "pktvisor-test",
		NameSuffixLength:    10,
		PortAttempts:        10,
		APIHost:             "localhost",
		SchemaFileName:      "metrics_schema.json",
		DataDir:             filepath.Join("automated_tests", "features", "steps", "pcap_files"),
		ReplayTool:          "tcpreplay",
		StartupGrace:        time.Second,
		Poll: Poll{
			Wait:        500 * time.Millisecond,
			Timeout:     10 * time.Second,
			RequestWait: time.Second,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads path on top of Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating directories as needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SchemaPath is where the metrics schema lives for this configuration.
func (c Config) SchemaPath() string {
	return filepath.Join(c.DataDir, "schemas", c.SchemaFileName)
}

// CapturePath resolves a capture file name inside the data directory.
func (c Config) CapturePath(name string) string {
	return filepath.Join(c.DataDir, name)
}

// Validate checks the fields every component depends on.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Image) == "":
		return &ValidationError{Field: "image", Message: "must not be empty"}
	case strings.TrimSpace(c.AgentBinary) == "":
		return &ValidationError{Field: "agent_binary", Message: "must not be empty"}
	case c.DefaultPort <= 0 || c.DefaultPort > 65535:
		return &ValidationError{Field: "default_port", Message: fmt.Sprintf("%d is not a valid port", c.DefaultPort)}
	case c.PortAttempts <= 0:
		return &ValidationError{Field: "port_attempts", Message: "must be positive"}
	case c.NameSuffixLength <= 0:
		return &ValidationError{Field: "name_suffix_length", Message: "must be positive"}
	case c.Poll.Wait <= 0:
		return &ValidationError{Field: "poll.wait", Message: "must be positive"}
	case c.Poll.Timeout <= 0:
		return &ValidationError{Field: "poll.timeout", Message: "must be positive"}
	case c.Poll.RequestWait <= 0:
		return &ValidationError{Field: "poll.request_wait", Message: "must be positive"}
	case strings.TrimSpace(c.ReplayTool) == "":
		return &ValidationError{Field: "replay_tool", Message: "must not be empty"}
	}
	// Linux caps interface names at 15 bytes.
	if len(c.Interface) > 15 {
		return &ValidationError{Field: "interface", Message: "longer than 15 bytes"}
	}
	return nil
}

// ValidationError indicates an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}
