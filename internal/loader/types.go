// Package loader - Configuration Types
//
// Defines the YAML configuration structure for lexcached.
package loader

import (
	"time"

	"github.com/lexcache/lexcache/config"
	"github.com/lexcache/lexcache/internal/retention"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for lexcached.
type Config struct {
	// Listen is the TCP listen address.
	// Format: "host:port" or ":port"
	// Default: "127.0.0.1:8629"
	Listen string `yaml:"listen"`

	// MaxMessageSize caps a single inbound message in bytes.
	MaxMessageSize int `yaml:"max_message_size"`

	// Redis configures the backing key-value store.
	Redis RedisConfig `yaml:"redis"`

	// Retention configures per-data-class TTLs in days.
	Retention retention.Config `yaml:"retention"`

	// Session configures client connection management.
	Session SessionConfig `yaml:"session"`

	// Metrics configures latency reporting.
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// Shutdown configures graceful shutdown behavior.
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// RedisConfig configures the connection to the backing store.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr"`

	// Password authenticates against a protected instance.
	// Supports ${ENV_VAR} expansion.
	Password string `yaml:"password"`

	// DB selects the logical database number.
	DB int `yaml:"db"`

	// OpTimeoutMs bounds a single store operation in milliseconds.
	OpTimeoutMs int `yaml:"op_timeout_ms"`

	// PingIntervalSec is the health probe interval in seconds.
	PingIntervalSec int `yaml:"ping_interval_sec"`
}

// SessionConfig configures client session management.
type SessionConfig struct {
	// SendBufferSize is the per-session outbound queue length.
	SendBufferSize int `yaml:"send_buffer_size"`

	// SendTimeoutMs bounds a blocked send before the message is dropped.
	SendTimeoutMs int `yaml:"send_timeout_ms"`

	// CleanupIntervalSec is how often closed sessions are reaped.
	CleanupIntervalSec int `yaml:"cleanup_interval_sec"`
}

// MetricsConfig configures latency tracking.
type MetricsConfig struct {
	// Enabled toggles periodic latency reports.
	Enabled bool `yaml:"enabled"`

	// ReportIntervalSec is the report cadence in seconds.
	ReportIntervalSec int `yaml:"report_interval_sec"`

	// Accuracy is the relative accuracy of latency percentiles.
	Accuracy float64 `yaml:"accuracy"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output to structured JSON lines.
	JSON bool `yaml:"json"`
}

// ShutdownConfig configures graceful shutdown behavior.
type ShutdownConfig struct {
	// DrainTimeoutSec bounds how long in-flight connections get to finish.
	DrainTimeoutSec int `yaml:"drain_timeout_sec"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:         config.DefaultListenAddress,
		MaxMessageSize: config.DefaultMaxMessageSize,
		Redis: RedisConfig{
			Addr:            config.DefaultRedisAddr,
			OpTimeoutMs:     int(config.DefaultStoreOpTimeout / time.Millisecond),
			PingIntervalSec: int(config.DefaultStorePingInterval / time.Second),
		},
		Session: SessionConfig{
			SendBufferSize:     config.DefaultSessionSendBufferSize,
			SendTimeoutMs:      config.DefaultSessionSendTimeoutMs,
			CleanupIntervalSec: config.DefaultSessionCleanupIntervalSec,
		},
		Metrics: MetricsConfig{
			Enabled:           true,
			ReportIntervalSec: int(config.DefaultMetricsReportInterval / time.Second),
			Accuracy:          config.DefaultLatencyAccuracy,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Shutdown: ShutdownConfig{
			DrainTimeoutSec: int(config.DefaultDrainTimeout / time.Second),
		},
	}
}

// OpTimeout returns the store operation timeout as a duration.
func (r *RedisConfig) OpTimeout() time.Duration {
	return time.Duration(r.OpTimeoutMs) * time.Millisecond
}

// PingInterval returns the health probe interval as a duration.
func (r *RedisConfig) PingInterval() time.Duration {
	return time.Duration(r.PingIntervalSec) * time.Second
}

// DrainTimeout returns the shutdown drain bound as a duration.
func (s *ShutdownConfig) DrainTimeout() time.Duration {
	return time.Duration(s.DrainTimeoutSec) * time.Second
}
