// Package config loads rectopt.toml.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/logging"
	"github.com/vinayprograms/rectopt/optimize"
)

// FileName is the configuration file looked up in StandardPaths.
const FileName = "rectopt.toml"

// Duration is a time.Duration written as a string ("30s", "100ms").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full configuration file.
type Config struct {
	Iterations int     `toml:"iterations"`
	Workers    int     `toml:"workers"`
	Objective  string  `toml:"objective"`
	Penalty    float64 `toml:"penalty"`

	Domain    optimize.Bounds `toml:"domain"`
	Transport Transport       `toml:"transport"`
	Logging   Logging         `toml:"logging"`
	Telemetry Telemetry       `toml:"telemetry"`
}

// Transport selects how ranks talk to each other.
type Transport struct {
	// Kind is "memory" (all ranks in this process) or "nats".
	Kind         string   `toml:"kind"`
	URL          string   `toml:"url"`
	Subject      string   `toml:"subject"`
	Rank         int      `toml:"rank"`
	Size         int      `toml:"size"`
	PeerTimeout  Duration `toml:"peer_timeout"`
	JoinInterval Duration `toml:"join_interval"`
}

// Logging configures the console logger.
type Logging struct {
	Level string `toml:"level"`
}

// Telemetry configures OTLP export. An empty endpoint disables it.
type Telemetry struct {
	Endpoint string `toml:"endpoint"`
	Protocol string `toml:"protocol"`
	Insecure bool   `toml:"insecure"`
	Debug    bool   `toml:"debug"`

	// SampleRatio is the fraction of runs traced; 0 traces all.
	SampleRatio float64 `toml:"sample_ratio"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Iterations: 40,
		Workers:    4,
		Objective:  optimize.DefaultObjective,
		Penalty:    optimize.DefaultPenalty,
		Domain:     optimize.DefaultBounds(),
		Transport: Transport{
			Kind:         "memory",
			URL:          "nats://127.0.0.1:4222",
			Subject:      "rectopt",
			Rank:         0,
			Size:         1,
			PeerTimeout:  Duration{30 * time.Second},
			JoinInterval: Duration{100 * time.Millisecond},
		},
		Logging: Logging{Level: "info"},
		Telemetry: Telemetry{
			Protocol: "grpc",
			Insecure: true,
		},
	}
}

// StandardPaths returns the configuration file locations in order of priority.
func StandardPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rectopt", FileName))
	}
	return paths
}

// Load reads the first file in StandardPaths. With no file it returns
// Default() and an empty path.
func Load() (*Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			return cfg, path, err
		}
	}
	return Default(), "", nil
}

// LoadFile reads path over the defaults.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("config file "+path, errors.WithCause(err))
		}
		return nil, errors.Wrap(err, "read config "+path)
	}
	cfg, err := Parse(string(content))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

// Parse decodes TOML content over the defaults. Unknown keys are rejected.
func Parse(content string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(content, cfg)
	if err != nil {
		return nil, errors.InvalidInput("parse config", errors.WithCause(err))
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.InvalidInput("unknown config keys: " + strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate checks every field. It does not check the iteration budget,
// which the run's lifecycle validates.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.InvalidInput(fmt.Sprintf("workers must be at least 1, got %d", c.Workers))
	}
	if _, err := optimize.LookupObjective(c.Objective); err != nil {
		return errors.InvalidInput(err.Error())
	}
	if math.IsNaN(c.Penalty) || c.Penalty < 0 {
		return errors.InvalidInput(fmt.Sprintf("penalty %v must be non-negative", c.Penalty))
	}
	if err := c.Domain.Validate(); err != nil {
		return err
	}

	switch c.Transport.Kind {
	case "memory":
	case "nats":
		if c.Transport.URL == "" {
			return errors.InvalidInput("transport.url is required for nats")
		}
		if c.Transport.Size < 1 || c.Transport.Rank < 0 || c.Transport.Rank >= c.Transport.Size {
			return errors.InvalidInput(fmt.Sprintf("transport rank %d outside size %d", c.Transport.Rank, c.Transport.Size))
		}
	default:
		return errors.InvalidInput(fmt.Sprintf("unknown transport kind %q (use memory or nats)", c.Transport.Kind))
	}
	if c.Transport.Subject == "" {
		return errors.InvalidInput("transport.subject must not be empty")
	}
	if c.Transport.PeerTimeout.Duration < 0 {
		return errors.InvalidInput("transport.peer_timeout must not be negative")
	}

	if _, ok := logging.ParseLevel(c.Logging.Level); !ok {
		return errors.InvalidInput(fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}

	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return errors.InvalidInput(fmt.Sprintf("unknown telemetry protocol %q (use grpc or http)", c.Telemetry.Protocol))
	}
	if r := c.Telemetry.SampleRatio; math.IsNaN(r) || r < 0 || r > 1 {
		return errors.InvalidInput(fmt.Sprintf("telemetry.sample_ratio %v outside [0, 1]", r))
	}
	return nil
}

// Options returns run options for this configuration.
func (c *Config) Options() (optimize.Options, error) {
	f, err := optimize.LookupObjective(c.Objective)
	if err != nil {
		return optimize.Options{}, err
	}
	name := c.Objective
	if name == "" {
		name = optimize.DefaultObjective
	}
	return optimize.Options{
		Iterations:    c.Iterations,
		Bounds:        c.Domain,
		Objective:     f,
		ObjectiveName: name,
		Penalty:       c.Penalty,
	}, nil
}
