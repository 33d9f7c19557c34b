// Package config holds the run configuration: defaults, an optional YAML file, and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"fanout/internal/core"
)

const (
	// DefaultLimit is the number of indices processed.
	DefaultLimit = 100
	// DefaultDelayUpperBoundMillis is the exclusive upper bound of the simulated latency.
	DefaultDelayUpperBoundMillis = 500
	// DefaultStageDelayUpperBoundMillis bounds the latency each pipeline stage adds per number.
	DefaultStageDelayUpperBoundMillis = 20
	// DefaultLogLevel keeps stderr quiet on a normal run.
	DefaultLogLevel = "warn"
)

// Execution modes.
const (
	// ModeFanout spawns one task per index and collects the results in index order.
	ModeFanout = "fanout"
	// ModePipeline streams indices through one goroutine per rule plus a finalize stage.
	ModePipeline = "pipeline"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the fully resolved run configuration.
type Config struct {
	// Mode selects the execution strategy: ModeFanout or ModePipeline.
	Mode string `yaml:"mode"`

	// Limit is the total number of work items, indices 1..Limit.
	Limit int `yaml:"limit"`

	// DelayUpperBoundMillis bounds the simulated per-task latency; 0 disables it.
	DelayUpperBoundMillis int `yaml:"delay_upper_bound_millis"`

	// StageDelayUpperBoundMillis bounds the latency of every pipeline stage; 0 disables it.
	StageDelayUpperBoundMillis int `yaml:"stage_delay_upper_bound_millis"`

	// MaxInFlight gates concurrently running task bodies; 0 means unbounded fan-out.
	MaxInFlight int `yaml:"max_in_flight"`

	// ObserveInterval enables the progress observer when > 0.
	ObserveInterval time.Duration `yaml:"observe_interval"`

	LogLevel string `yaml:"log_level"`

	// Rules overrides the default Fizz/Buzz/Bazz rule set when non-empty.
	Rules []core.Rule `yaml:"rules"`
}

// Default returns the configuration of a plain, argument-less run.
func Default() Config {
	return Config{
		Mode:                       ModeFanout,
		Limit:                      DefaultLimit,
		DelayUpperBoundMillis:      DefaultDelayUpperBoundMillis,
		StageDelayUpperBoundMillis: DefaultStageDelayUpperBoundMillis,
		LogLevel:                   DefaultLogLevel,
	}
}

// DelayUpperBound returns DelayUpperBoundMillis as a duration.
func (c Config) DelayUpperBound() time.Duration {
	return time.Duration(c.DelayUpperBoundMillis) * time.Millisecond
}

// StageDelayUpperBound returns StageDelayUpperBoundMillis as a duration.
func (c Config) StageDelayUpperBound() time.Duration {
	return time.Duration(c.StageDelayUpperBoundMillis) * time.Millisecond
}

// EffectiveRules returns Rules, or core.DefaultRules when none are configured.
func (c Config) EffectiveRules() []core.Rule {
	if len(c.Rules) == 0 {
		return core.DefaultRules
	}
	return c.Rules
}

// Validate checks every field and wraps failures in ErrInvalidConfig.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeFanout, ModePipeline:
	default:
		return fmt.Errorf("%w: mode must be %q or %q (got %q)", ErrInvalidConfig, ModeFanout, ModePipeline, c.Mode)
	}
	if c.Limit < 0 {
		return fmt.Errorf("%w: limit must be >= 0 (got %d)", ErrInvalidConfig, c.Limit)
	}
	if c.DelayUpperBoundMillis < 0 {
		return fmt.Errorf("%w: delay_upper_bound_millis must be >= 0 (got %d)", ErrInvalidConfig, c.DelayUpperBoundMillis)
	}
	if c.StageDelayUpperBoundMillis < 0 {
		return fmt.Errorf("%w: stage_delay_upper_bound_millis must be >= 0 (got %d)", ErrInvalidConfig, c.StageDelayUpperBoundMillis)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("%w: max_in_flight must be >= 0 (got %d)", ErrInvalidConfig, c.MaxInFlight)
	}
	if c.ObserveInterval < 0 {
		return fmt.Errorf("%w: observe_interval must be >= 0 (got %s)", ErrInvalidConfig, c.ObserveInterval)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if len(c.Rules) > 0 {
		if err := core.ValidateRules(c.Rules); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Load reads a YAML file over Default(). Fields absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
