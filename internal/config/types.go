// Package config provides configuration loading for toolbank.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration to support human-readable text in YAML and
// environment variables ("168h", "3s").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the root toolbank configuration.
type Config struct {
	Learning LearningConfig `koanf:"learning"`
	Storage  StorageConfig  `koanf:"storage"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// LearningConfig tunes the scoring and learning engine.
type LearningConfig struct {
	// HalfLife is the age at which a usage record's decay weight reaches
	// one half.
	HalfLife Duration `koanf:"half_life"`

	// MinSamples is the fewest native samples a tool needs before it can
	// be suggested.
	MinSamples int `koanf:"min_samples"`

	// HighConfidenceSamples is the sample count at which a suggestion is
	// labeled high confidence.
	HighConfidenceSamples int `koanf:"high_confidence_samples"`

	MaxRecordsPerContext int `koanf:"max_records_per_context"`
	MaxGroupsPerContext  int `koanf:"max_groups_per_context"`
	MaxExperiences       int `koanf:"max_experiences"`

	// MinGroupSize is the smallest experience group the batch learner will
	// score.
	MinGroupSize int `koanf:"min_group_size"`

	// ExtractionEpsilon is the margin by which a group's best composite
	// must beat the group mean before a pattern is extracted.
	ExtractionEpsilon float64 `koanf:"extraction_epsilon"`

	// RelatedDiscount scales scores borrowed from related contexts.
	RelatedDiscount float64 `koanf:"related_discount"`

	// Retention is the maximum age of usage records, comparison groups,
	// and experiences before pruning.
	Retention Duration `koanf:"retention"`

	// FlushDelay is how long a dirty cache waits before its deferred
	// write fires.
	FlushDelay Duration `koanf:"flush_delay"`
}

// StorageConfig selects and locates the backing document store.
type StorageConfig struct {
	// Driver is one of "file", "sqlite", or "memory".
	Driver string `koanf:"driver"`

	// Path is the data directory (file driver) or database file (sqlite
	// driver). Unused by the memory driver.
	Path string `koanf:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	l := c.Learning
	if l.HalfLife.Duration() <= 0 {
		return fmt.Errorf("learning.half_life must be positive")
	}
	if l.MinSamples < 1 {
		return fmt.Errorf("learning.min_samples must be at least 1")
	}
	if l.HighConfidenceSamples < l.MinSamples {
		return fmt.Errorf("learning.high_confidence_samples must be >= learning.min_samples")
	}
	if l.MaxRecordsPerContext < 1 || l.MaxGroupsPerContext < 1 || l.MaxExperiences < 1 {
		return fmt.Errorf("learning caps must be at least 1")
	}
	if l.MinGroupSize < 2 {
		return fmt.Errorf("learning.min_group_size must be at least 2")
	}
	if l.ExtractionEpsilon <= 0 {
		return fmt.Errorf("learning.extraction_epsilon must be positive")
	}
	if l.RelatedDiscount < 0 || l.RelatedDiscount > 1 {
		return fmt.Errorf("learning.related_discount must be in [0,1]")
	}
	if l.Retention.Duration() <= 0 {
		return fmt.Errorf("learning.retention must be positive")
	}
	if l.FlushDelay.Duration() <= 0 {
		return fmt.Errorf("learning.flush_delay must be positive")
	}

	switch c.Storage.Driver {
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be 'file', 'sqlite', or 'memory', got %q", c.Storage.Driver)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}
