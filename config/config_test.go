package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vinayprograms/rectopt/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Iterations != 40 || cfg.Domain.MinX != -5 || cfg.Transport.PeerTimeout.Duration != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse(`
iterations = 20
objective  = "booth"

[domain]
min_x = -10.0
max_x = 10.0

[transport]
kind         = "nats"
url          = "nats://nats:4222"
rank         = 2
size         = 3
peer_timeout = "5s"
join_interval = "250ms"

[logging]
level = "debug"

[telemetry]
endpoint = "collector:4317"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Iterations != 20 || cfg.Objective != "booth" {
		t.Errorf("top level = %d %q", cfg.Iterations, cfg.Objective)
	}
	if cfg.Workers != 4 || cfg.Penalty != 2.0 {
		t.Errorf("defaults lost: workers %d penalty %v", cfg.Workers, cfg.Penalty)
	}
	if cfg.Domain.MinX != -10 || cfg.Domain.MaxX != 10 || cfg.Domain.MinY != -5 {
		t.Errorf("domain = %+v", cfg.Domain)
	}
	tr := cfg.Transport
	if tr.Kind != "nats" || tr.Rank != 2 || tr.Size != 3 || tr.Subject != "rectopt" {
		t.Errorf("transport = %+v", tr)
	}
	if tr.PeerTimeout.Duration != 5*time.Second || tr.JoinInterval.Duration != 250*time.Millisecond {
		t.Errorf("durations = %v %v", tr.PeerTimeout, tr.JoinInterval)
	}
	if cfg.Telemetry.Endpoint != "collector:4317" || cfg.Telemetry.Protocol != "grpc" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `iterations = `},
		{"unknown key", `iterations = 5
colour = "blue"`},
		{"unknown section key", `[transport]
rnak = 1`},
		{"bad duration", `[transport]
peer_timeout = "soon"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.content); !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"objective", func(c *Config) { c.Objective = "rastrigin" }},
		{"penalty", func(c *Config) { c.Penalty = -2 }},
		{"domain", func(c *Config) { c.Domain.MinY, c.Domain.MaxY = 3, -3 }},
		{"transport kind", func(c *Config) { c.Transport.Kind = "mpi" }},
		{"nats rank", func(c *Config) { c.Transport.Kind, c.Transport.Rank, c.Transport.Size = "nats", 3, 3 }},
		{"subject", func(c *Config) { c.Transport.Subject = "" }},
		{"timeout", func(c *Config) { c.Transport.PeerTimeout.Duration = -time.Second }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"telemetry protocol", func(c *Config) { c.Telemetry.Protocol = "udp" }},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestValidate_CollapsedDomainAllowed(t *testing.T) {
	cfg := Default()
	cfg.Domain.MinX, cfg.Domain.MaxX = 1, 1
	if err := cfg.Validate(); err != nil {
		t.Errorf("collapsed domain rejected: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("iterations = 7\nworkers = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Iterations != 7 || cfg.Workers != 2 {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.toml")); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestLoad_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, path, err := Load()
	if err != nil || path != "" {
		t.Fatalf("Load() = %q, %v", path, err)
	}
	if cfg.Iterations != Default().Iterations {
		t.Errorf("cfg = %+v", cfg)
	}

	os.WriteFile(FileName, []byte("iterations = 3\n"), 0o644)
	cfg, path, err = Load()
	if err != nil || path != FileName || cfg.Iterations != 3 {
		t.Errorf("Load() = %+v, %q, %v", cfg, path, err)
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Objective = "sphere"
	cfg.Iterations = 12

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.Iterations != 12 || opts.ObjectiveName != "sphere" || opts.Objective(0, 0) != 0 {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Bounds != cfg.Domain || opts.Penalty != 2.0 {
		t.Errorf("opts = %+v", opts)
	}
}
