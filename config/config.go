// Package config loads and validates the admission layer configuration from
// a YAML file and environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/sentinel/breaker"
	"github.com/c360/sentinel/errors"
)

// Storage backend constants
const (
	BackendMemory = "memory" // in-process only, single instance
	BackendNATS   = "nats"   // NATS JetStream KV, shared across instances
)

// NATSConfig defines the NATS connection settings
type NATSConfig struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
}

// RateLimitConfig defines the default fixed-window budget
type RateLimitConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

// IdempotencyConfig defines dedup record retention
type IdempotencyConfig struct {
	Retention time.Duration `yaml:"retention"`
}

// Config is the complete admission layer configuration
type Config struct {
	// Backend selects where shared state lives. Empty resolves from the
	// NATS URL: set means nats, unset means memory.
	Backend string `yaml:"backend"`

	ListenAddr  string            `yaml:"listen_addr"`
	NATS        NATSConfig        `yaml:"nats"`
	Breaker     breaker.Config    `yaml:"breaker"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		NATS:       NATSConfig{Bucket: "sentinel"},
		Breaker:    breaker.DefaultConfig(),
		RateLimit: RateLimitConfig{
			Window:      time.Minute,
			MaxRequests: 60,
		},
		Idempotency: IdempotencyConfig{
			Retention: 24 * time.Hour,
		},
	}
}

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WrapFatal(err, "config", "LoadFile", "read "+path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WrapInvalid(err, "config", "LoadFile", "parse "+path)
	}
	return cfg, nil
}

// LoadFromEnv applies environment overrides on top of cfg. Unset variables
// leave the existing values untouched.
func LoadFromEnv(cfg Config) (Config, error) {
	if v := os.Getenv("SENTINEL_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SENTINEL_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SENTINEL_NATS_BUCKET"); v != "" {
		cfg.NATS.Bucket = v
	}
	if v := os.Getenv("SENTINEL_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("SENTINEL_RATE_LIMIT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.WrapInvalid(err, "config", "LoadFromEnv", "parse SENTINEL_RATE_LIMIT_MAX")
		}
		cfg.RateLimit.MaxRequests = n
	}
	if v := os.Getenv("SENTINEL_RATE_LIMIT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, errors.WrapInvalid(err, "config", "LoadFromEnv", "parse SENTINEL_RATE_LIMIT_WINDOW")
		}
		cfg.RateLimit.Window = d
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the optional YAML
// file at path, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		var err error
		cfg, err = LoadFile(path)
		if err != nil {
			return cfg, err
		}
	}
	return LoadFromEnv(cfg)
}

// ResolvedBackend returns the effective storage backend.
func (c Config) ResolvedBackend() string {
	if c.Backend != "" {
		return c.Backend
	}
	if c.NATS.URL != "" {
		return BackendNATS
	}
	return BackendMemory
}

// Validate checks the configuration for programming errors.
func (c Config) Validate() error {
	switch c.ResolvedBackend() {
	case BackendMemory:
	case BackendNATS:
		if c.NATS.URL == "" {
			return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "nats backend requires a url")
		}
		if c.NATS.Bucket == "" {
			return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "nats backend requires a bucket")
		}
	default:
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown backend %q", c.Backend))
	}

	if err := c.Breaker.Validate(); err != nil {
		return err
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "rate limit window and max must be positive")
	}
	if c.Idempotency.Retention <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "config", "Validate", "idempotency retention must be positive")
	}
	return nil
}
