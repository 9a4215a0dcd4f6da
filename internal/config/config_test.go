package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultPort != DefaultAgentPort {
		t.Fatalf("DefaultPort = %d, want %d", cfg.DefaultPort, DefaultAgentPort)
	}
	if cfg.SchemaFileName != "metrics_schema.json" {
		t.Fatalf("SchemaFileName = %q", cfg.SchemaFileName)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	data := []byte(`
image: example/agent:dev
port_attempts: 3
poll:
  wait: 250ms
  timeout: 4s
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Image != "example/agent:dev" {
		t.Fatalf("Image = %q", cfg.Image)
	}
	if cfg.PortAttempts != 3 {
		t.Fatalf("PortAttempts = %d", cfg.PortAttempts)
	}
	if cfg.Poll.Wait != 250*time.Millisecond || cfg.Poll.Timeout != 4*time.Second {
		t.Fatalf("Poll = %+v", cfg.Poll)
	}
	// Untouched keys keep their defaults.
	if cfg.ReplayTool != "tcpreplay" {
		t.Fatalf("ReplayTool = %q", cfg.ReplayTool)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	if err := os.WriteFile(path, []byte("port_attempts: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Load error = %v, want ValidationError", err)
	}
	if verr.Field != "port_attempts" {
		t.Fatalf("Field = %q", verr.Field)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "harness.yaml")
	want := Default()
	want.UseSudo = true
	want.Interface = "dummy7"

	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestSchemaPath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	if got := cfg.SchemaPath(); got != "/data/schemas/metrics_schema.json" {
		t.Fatalf("SchemaPath = %q", got)
	}
}
