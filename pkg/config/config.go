package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML strings like "30s" or
// "10m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the daemon configuration, loaded from YAML with sensible
// defaults for everything but the resource-manager endpoint.
type Config struct {
	// APIAddr is the admin API listen address.
	APIAddr string `yaml:"api"`

	// Storage selects the snapshot backend: file:PATH, zk:CONNECT or
	// bolt:PATH.
	Storage string `yaml:"storage"`

	// Master is the resource-manager endpoint the HTTP driver talks to.
	Master string `yaml:"master"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	Failover   FailoverConfig   `yaml:"failover"`
	Stickiness StickinessConfig `yaml:"stickiness"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
}

// FailoverConfig seeds every server's backoff policy.
type FailoverConfig struct {
	Delay    Duration `yaml:"delay"`
	MaxDelay Duration `yaml:"maxDelay"`
	MaxTries *int     `yaml:"maxTries,omitempty"`
}

// StickinessConfig sets the host-affinity window.
type StickinessConfig struct {
	Period Duration `yaml:"period"`
}

// DefaultsConfig fills resource fields left out of add requests.
type DefaultsConfig struct {
	CPUs float64 `yaml:"cpus"`
	Mem  float64 `yaml:"mem"`
}

// ReconcileConfig drives the stuck-staging sweep.
type ReconcileConfig struct {
	Interval       Duration `yaml:"interval"`
	StagingTimeout Duration `yaml:"stagingTimeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIAddr:  ":6666",
		Storage:  "file:zkfleet.json",
		LogLevel: "info",
		Failover: FailoverConfig{
			Delay:    Duration(10 * time.Second),
			MaxDelay: Duration(5 * time.Minute),
		},
		Stickiness: StickinessConfig{
			Period: Duration(10 * time.Minute),
		},
		Defaults: DefaultsConfig{
			CPUs: 0.2,
			Mem:  256,
		},
		Reconcile: ReconcileConfig{
			Interval:       Duration(30 * time.Second),
			StagingTimeout: Duration(5 * time.Minute),
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults
// untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Storage == "" {
		return fmt.Errorf("storage must be set")
	}
	if c.Failover.Delay <= 0 || c.Failover.MaxDelay < c.Failover.Delay {
		return fmt.Errorf("failover delay must be positive and no greater than maxDelay")
	}
	if c.Failover.MaxTries != nil && *c.Failover.MaxTries < 1 {
		return fmt.Errorf("failover maxTries must be at least 1")
	}
	if c.Stickiness.Period < 0 {
		return fmt.Errorf("stickiness period must not be negative")
	}
	if c.Defaults.CPUs <= 0 || c.Defaults.Mem <= 0 {
		return fmt.Errorf("default cpus and mem must be positive")
	}
	return nil
}
