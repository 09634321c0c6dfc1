// Package retention maps logical data classes to time-to-live durations.
//
// Four classes of persisted data have independent retention, configured in
// days. Individual response records and audio blobs are set-once TTLs;
// aggregate statistics TTLs are refreshed on every update so that actively
// answered questions never expire while abandoned ones age out.
package retention

import (
	"fmt"
	"time"

	"github.com/lexcache/lexcache/config"
)

// Class identifies a logical class of persisted data.
type Class int

const (
	// IndividualResponses are immutable per-response audit records.
	IndividualResponses Class = iota
	// AudioCache are content-addressed audio payloads.
	AudioCache
	// QuestionStats are global per-question aggregates (TTL refreshed).
	QuestionStats
	// UserQuestionStats are per-user per-question aggregates (TTL refreshed).
	UserQuestionStats
)

// AllClasses returns every data class in declaration order.
func AllClasses() []Class {
	return []Class{IndividualResponses, AudioCache, QuestionStats, UserQuestionStats}
}

// String returns the class name used in logs and configuration.
func (c Class) String() string {
	switch c {
	case IndividualResponses:
		return "individual_responses"
	case AudioCache:
		return "audio_cache"
	case QuestionStats:
		return "question_stats"
	case UserQuestionStats:
		return "user_question_stats"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Refreshed reports whether the class TTL is reset on every update
// rather than set once at creation.
func (c Class) Refreshed() bool {
	return c == QuestionStats || c == UserQuestionStats
}

// Policy holds the configured retention for each data class.
type Policy struct {
	days map[Class]int
}

// Config holds per-class retention in days. Zero values fall back to
// the documented defaults.
type Config struct {
	IndividualResponsesDays int `yaml:"individual_responses_days"`
	AudioCacheDays          int `yaml:"audio_cache_days"`
	QuestionStatsDays       int `yaml:"question_stats_days"`
	UserQuestionStatsDays   int `yaml:"user_question_stats_days"`
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() Config {
	return Config{
		IndividualResponsesDays: config.DefaultIndividualResponseDays,
		AudioCacheDays:          config.DefaultAudioCacheDays,
		QuestionStatsDays:       config.DefaultQuestionStatsDays,
		UserQuestionStatsDays:   config.DefaultUserQuestionStatsDays,
	}
}

// New creates a policy from configuration, applying defaults for
// unset (zero) values. Negative values are rejected.
func New(cfg Config) (*Policy, error) {
	def := DefaultConfig()

	days := map[Class]int{
		IndividualResponses: cfg.IndividualResponsesDays,
		AudioCache:          cfg.AudioCacheDays,
		QuestionStats:       cfg.QuestionStatsDays,
		UserQuestionStats:   cfg.UserQuestionStatsDays,
	}
	defaults := map[Class]int{
		IndividualResponses: def.IndividualResponsesDays,
		AudioCache:          def.AudioCacheDays,
		QuestionStats:       def.QuestionStatsDays,
		UserQuestionStats:   def.UserQuestionStatsDays,
	}

	for _, class := range AllClasses() {
		if days[class] < 0 {
			return nil, fmt.Errorf("retention for %s cannot be negative: %d", class, days[class])
		}
		if days[class] == 0 {
			days[class] = defaults[class]
		}
	}

	return &Policy{days: days}, nil
}

// Default returns a policy with all defaults applied.
func Default() *Policy {
	p, _ := New(Config{})
	return p
}

// Days returns the configured retention in days for a class.
func (p *Policy) Days(class Class) int {
	return p.days[class]
}

// TTL returns the retention as a duration for use with store expiry.
func (p *Policy) TTL(class Class) time.Duration {
	return time.Duration(p.days[class]) * 24 * time.Hour
}

// TTLSeconds returns the retention in whole seconds, the unit the
// backing store's expiry commands use.
func (p *Policy) TTLSeconds(class Class) int64 {
	return int64(p.days[class]) * 24 * 60 * 60
}
