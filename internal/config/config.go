// Package config holds the reasoner configuration: component selection,
// cost-model parameters, and resource bounds. Configuration is loaded from
// a YAML file merged over defaults, with DAV_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full reasoner configuration.
type Config struct {
	// Component selection.
	Enumerator string `yaml:"enumerator"` // depth | astar
	Converter  string `yaml:"converter"`  // null | weighted | costed

	// Cost model.
	CostProvider           string  `yaml:"cost_provider"` // basic | linear | parameterized
	DefaultAxiomWeight     float64 `yaml:"default_axiom_weight"`
	DefaultObservationCost float64 `yaml:"default_observation_cost"`
	CostedProvider         string  `yaml:"costed_provider"` // "basic(d, lu, tu)"
	FeatureWeightPath      string  `yaml:"feature_weight_path"`

	// Enumeration bounds. MaxDepth < 0 means unbounded; MaxDistance < 0
	// disables the distance cutoff; MaxLHSSize <= 0 disables the size cap.
	MaxDepth    int     `yaml:"max_depth"`
	MaxDistance float64 `yaml:"max_distance"`
	MaxLHSSize  int     `yaml:"max_lhs_size"`
	DoDeduction bool    `yaml:"do_deduction"`
	DoAbduction bool    `yaml:"do_abduction"`

	// Knowledge-base compile.
	DistanceProvider string `yaml:"distance_provider"` // basic | cost

	// Resources.
	Timeout  time.Duration `yaml:"timeout"`  // per problem; 0 = none
	Parallel int           `yaml:"parallel"` // worker pool size

	// Logging.
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Enumerator:             "depth",
		Converter:              "weighted",
		CostProvider:           "basic",
		DefaultAxiomWeight:     1.2,
		DefaultObservationCost: 10.0,
		// Backward and forward chaining re-derive each other forever on
		// recursive bases, so the out-of-box depth is finite.
		MaxDepth:               3,
		MaxDistance:            -1,
		MaxLHSSize:             0,
		DoDeduction:            true,
		DoAbduction:            true,
		DistanceProvider:       "basic",
		Timeout:                0,
		Parallel:               1,
		LogLevel:               "info",
	}
}

// Load reads a YAML configuration file over the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// Validate rejects configurations that would fail mid-inference. Component
// names (enumerator, converter) are resolved against their registries when
// the engine is built, so unknown names fail there, still before any work
// starts.
func (c *Config) Validate() error {
	if c.Enumerator == "" {
		return fmt.Errorf("config: enumerator not set")
	}
	if c.Converter == "" {
		return fmt.Errorf("config: converter not set")
	}
	switch c.CostProvider {
	case "basic", "linear", "parameterized":
	default:
		return fmt.Errorf("config: unknown cost provider %q", c.CostProvider)
	}
	if c.DefaultAxiomWeight < 0 {
		return fmt.Errorf("config: default_axiom_weight must be non-negative")
	}
	if c.DefaultObservationCost < 0 {
		return fmt.Errorf("config: default_observation_cost must be non-negative")
	}
	if c.Parallel < 1 {
		return fmt.Errorf("config: parallel must be at least 1")
	}
	return nil
}

// applyEnvOverrides lets DAV_* environment variables win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DAV_ENUMERATOR"); v != "" {
		c.Enumerator = v
	}
	if v := os.Getenv("DAV_CONVERTER"); v != "" {
		c.Converter = v
	}
	if v := os.Getenv("DAV_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = d
		}
	}
	if v := os.Getenv("DAV_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Parallel = n
		}
	}
	if v := os.Getenv("DAV_DEBUG"); v != "" {
		c.Debug = v == "1" || v == "true"
	}
}
