// Package config provides configuration defaults and utilities
// for the lexcache application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or CLI flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default server listen address.
	// The broker is loopback-only: it serves local clients and is never
	// exposed beyond the host.
	// Override via config: listen
	DefaultListenAddress = "127.0.0.1:8629"

	// DefaultMaxMessageSize limits inbound message size to prevent OOM.
	// Audio payloads are base64 strings, so this needs headroom.
	// Override via config: server.max_message_size
	DefaultMaxMessageSize = 16 * 1024 * 1024
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultRedisAddr is the default Redis address.
	// Override via config: redis.addr
	DefaultRedisAddr = "localhost:6379"

	// DefaultRedisDB is the default Redis logical database.
	// Override via config: redis.db
	DefaultRedisDB = 0

	// DefaultStoreOpTimeout is the timeout for a single store round-trip.
	// Override via config: redis.op_timeout_ms
	DefaultStoreOpTimeout = 5 * time.Second

	// DefaultStorePingInterval is how often the readiness monitor pings
	// the store. A failed ping flips the adapter to not-ready; the next
	// successful ping flips it back.
	// Override via config: redis.ping_interval_sec
	DefaultStorePingInterval = 5 * time.Second
)

// =============================================================================
// Retention Defaults (days)
// =============================================================================

const (
	// DefaultIndividualResponseDays is how long individual response
	// records are kept. They are an audit trail, not an aggregate.
	// Override via config: retention.individual_responses_days
	DefaultIndividualResponseDays = 90

	// DefaultAudioCacheDays is how long cached audio renderings are kept.
	// Override via config: retention.audio_cache_days
	DefaultAudioCacheDays = 30

	// DefaultQuestionStatsDays is the retention for per-question aggregate
	// stats. Refreshed on every update, so active questions never expire.
	// Override via config: retention.question_stats_days
	DefaultQuestionStatsDays = 180

	// DefaultUserQuestionStatsDays is the retention for per-user-per-question
	// aggregate stats. Refreshed on every update.
	// Override via config: retention.user_question_stats_days
	DefaultUserQuestionStatsDays = 180
)

// =============================================================================
// Session Defaults
// =============================================================================

const (
	// DefaultSessionSendBufferSize is the capacity of the per-session send
	// channel. Processing is sequential per connection, so this only needs
	// to absorb bursts from slow client reads.
	// Override via config: session.send_buffer_size
	DefaultSessionSendBufferSize = 256

	// DefaultSessionSendTimeoutMs is how long to wait when the send buffer
	// is full. After this timeout, the message is dropped and the session
	// is closed.
	// Override via config: session.send_timeout_ms
	DefaultSessionSendTimeoutMs = 1000

	// DefaultSessionCleanupIntervalSec is how often closed sessions are
	// cleaned up from the session table.
	// Override via config: session.cleanup_interval_sec
	DefaultSessionCleanupIntervalSec = 60
)

// =============================================================================
// Metrics Defaults
// =============================================================================

const (
	// DefaultMetricsReportInterval is how often per-action latency
	// summaries are written to the log. Zero disables periodic reports
	// (a final report is still written on shutdown).
	// Override via config: metrics.report_interval_sec
	DefaultMetricsReportInterval = time.Minute

	// DefaultLatencyAccuracy is the DDSketch relative accuracy used for
	// handler latency percentiles.
	// Override via config: metrics.latency_accuracy
	DefaultLatencyAccuracy = 0.01
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultDrainTimeout is how long to wait for in-flight handlers
	// during shutdown before closing connections anyway.
	// Override via config: server.drain_timeout_sec
	DefaultDrainTimeout = 30 * time.Second
)
