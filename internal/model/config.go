package model

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Timeouts are the policy windows of the harness. All of them are
// configurable, but graceful must stay shorter than forced and the port wait
// shorter than the startup budget, which Validate enforces.
type Timeouts struct {
	Startup  time.Duration `yaml:"startup"`  // overall readiness budget
	Graceful time.Duration `yaml:"graceful"` // graceful termination window
	Forced   time.Duration `yaml:"forced"`   // forced termination window
	PortWait time.Duration `yaml:"portWait"` // pre-launch port conflict budget
}

// DefaultTimeouts mirror the windows the harness always used: 60s startup,
// 5s graceful, 10s forced, 3s port wait.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Startup:  60 * time.Second,
		Graceful: 5 * time.Second,
		Forced:   10 * time.Second,
		PortWait: 3 * time.Second,
	}
}

func (t Timeouts) Validate() error {
	if t.Startup <= 0 || t.Graceful <= 0 || t.Forced <= 0 || t.PortWait <= 0 {
		return fmt.Errorf("all timeouts must be positive: %+v", t)
	}
	if t.Graceful >= t.Forced {
		return fmt.Errorf("graceful window %v must be shorter than forced window %v", t.Graceful, t.Forced)
	}
	if t.PortWait >= t.Startup {
		return fmt.Errorf("port wait %v must be shorter than startup budget %v", t.PortWait, t.Startup)
	}
	return nil
}

// Host describes one functions project the CLI should bring up.
type Host struct {
	Project   string            `yaml:"project"`             // build output directory
	Port      uint16            `yaml:"port"`                //
	RuntimeID string            `yaml:"runtimeId,omitempty"` // e.g. net8.0
	Provider  string            `yaml:"provider"`            // csharp | node | python | ...
	Env       map[string]string `yaml:"env,omitempty"`       // caller environment overlay
}

// Config is the funchost.yaml surface consumed by the CLI.
type Config struct {
	Version  int      `yaml:"version"` // fixed 0 for now
	Tool     string   `yaml:"tool,omitempty"`
	Verbose  bool     `yaml:"verbose,omitempty"`
	Timeouts Timeouts `yaml:"timeouts"`
	Hosts    []Host   `yaml:"hosts"`
}

func DefaultConfig() Config {
	return Config{
		Version:  0,
		Timeouts: DefaultTimeouts(),
	}
}

// LoadConfig decodes and validates YAML from r.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Version != 0 {
		return Config{}, fmt.Errorf("config version %d is not supported, expected 0", cfg.Version)
	}
	if err := cfg.Timeouts.Validate(); err != nil {
		return Config{}, err
	}
	seen := make(map[uint16]bool, len(cfg.Hosts))
	for i, h := range cfg.Hosts {
		if h.Project == "" {
			return Config{}, fmt.Errorf("hosts[%d]: project is required", i)
		}
		if h.Port == 0 {
			return Config{}, fmt.Errorf("hosts[%d]: port is required", i)
		}
		if seen[h.Port] {
			return Config{}, fmt.Errorf("hosts[%d]: port %d configured twice", i, h.Port)
		}
		seen[h.Port] = true
	}
	return cfg, nil
}
