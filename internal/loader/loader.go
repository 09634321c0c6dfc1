// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Applying defaults for unset fields
//   - Validating the resulting configuration
package loader

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lexcache/lexcache/internal/errors"
	"github.com/lexcache/lexcache/internal/retention"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads the config file at path, or returns the defaults
// when path is empty or the file does not exist. A file that exists but
// fails to parse or validate is still an error.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.Listen == "" {
		errs.AddMissing("listen")
	} else if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		errs.AddInvalid("listen", cfg.Listen, "must be host:port")
	}

	if cfg.MaxMessageSize < 0 {
		errs.AddInvalid("max_message_size", cfg.MaxMessageSize, "cannot be negative")
	}

	if cfg.Redis.Addr == "" {
		errs.AddMissing("redis.addr")
	}
	if cfg.Redis.DB < 0 {
		errs.AddInvalid("redis.db", cfg.Redis.DB, "cannot be negative")
	}
	if cfg.Redis.OpTimeoutMs < 0 {
		errs.AddInvalid("redis.op_timeout_ms", cfg.Redis.OpTimeoutMs, "cannot be negative")
	}
	if cfg.Redis.PingIntervalSec < 0 {
		errs.AddInvalid("redis.ping_interval_sec", cfg.Redis.PingIntervalSec, "cannot be negative")
	}

	// Retention values are vetted by the retention package itself.
	if _, err := retention.New(cfg.Retention); err != nil {
		errs.Add(err)
	}

	if cfg.Session.SendBufferSize < 0 {
		errs.AddInvalid("session.send_buffer_size", cfg.Session.SendBufferSize, "cannot be negative")
	}
	if cfg.Session.SendTimeoutMs < 0 {
		errs.AddInvalid("session.send_timeout_ms", cfg.Session.SendTimeoutMs, "cannot be negative")
	}

	if cfg.Metrics.Accuracy < 0 || cfg.Metrics.Accuracy >= 1 {
		errs.AddInvalid("metrics.accuracy", cfg.Metrics.Accuracy, "must be in [0, 1)")
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs.AddInvalid("logging.level", cfg.Logging.Level, "must be debug, info, warn, or error")
	}

	if cfg.Shutdown.DrainTimeoutSec < 0 {
		errs.AddInvalid("shutdown.drain_timeout_sec", cfg.Shutdown.DrainTimeoutSec, "cannot be negative")
	}

	return errs.ErrOrNil()
}
