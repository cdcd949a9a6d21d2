package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces toolbank environment overrides.
	envPrefix = "TBANK_"
)

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TBANK_LEARNING_MIN_SAMPLES, TBANK_STORAGE_DRIVER, ...)
//  2. YAML config file (~/.config/toolbank/config.yaml by default)
//  3. Hardcoded defaults
//
// A missing config file is not an error; defaults and environment
// variables still apply.
//
// Environment variables drop the TBANK_ prefix, lowercase, and split on
// the first underscore into section and field:
//
//	TBANK_STORAGE_DRIVER          -> storage.driver
//	TBANK_LEARNING_MIN_SAMPLES    -> learning.min_samples
//	TBANK_LEARNING_FLUSH_DELAY    -> learning.flush_delay
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "toolbank", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// readConfigFile opens the file once and validates its size from the same
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// applyDefaults fills any field the file and environment left unset.
func applyDefaults(cfg *Config) error {
	l := &cfg.Learning
	if l.HalfLife == 0 {
		l.HalfLife = Duration(7 * 24 * time.Hour)
	}
	if l.MinSamples == 0 {
		l.MinSamples = 3
	}
	if l.HighConfidenceSamples == 0 {
		l.HighConfidenceSamples = 20
	}
	if l.MaxRecordsPerContext == 0 {
		l.MaxRecordsPerContext = 200
	}
	if l.MaxGroupsPerContext == 0 {
		l.MaxGroupsPerContext = 50
	}
	if l.MaxExperiences == 0 {
		l.MaxExperiences = 1000
	}
	if l.MinGroupSize == 0 {
		l.MinGroupSize = 2
	}
	if l.ExtractionEpsilon == 0 {
		l.ExtractionEpsilon = 0.05
	}
	if l.RelatedDiscount == 0 {
		l.RelatedDiscount = 0.5
	}
	if l.Retention == 0 {
		l.Retention = Duration(90 * 24 * time.Hour)
	}
	if l.FlushDelay == 0 {
		l.FlushDelay = Duration(3 * time.Second)
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Path == "" && cfg.Storage.Driver != "memory" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Storage.Path = filepath.Join(home, ".local", "share", "toolbank")
		if cfg.Storage.Driver == "sqlite" {
			cfg.Storage.Path = filepath.Join(cfg.Storage.Path, "toolbank.db")
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	return nil
}
