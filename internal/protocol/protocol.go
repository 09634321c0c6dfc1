// Package protocol defines the lexcache message protocol.
//
// Requests are JSON envelopes carrying an "action" discriminator plus
// action-specific fields. Responses carry a "type" discriminator distinct
// from the request's action. The request and response sides are typed
// variants, not a shared schema.
package protocol

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// =============================================================================
// Envelope
// =============================================================================

// Envelope is the minimal view of an inbound message used for routing.
type Envelope struct {
	Action string `json:"action"`
}

// Action extracts the action discriminator from a raw message. A message
// without an action field is malformed, not an unknown action.
func Action(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Action == "" {
		return "", fmt.Errorf("missing action")
	}
	return env.Action, nil
}

// ID is an identifier field that clients may send either as a JSON string
// or as a JSON number. It normalizes to its string form.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty identifier")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON implements json.Marshaler. Numeric identifiers are emitted
// as numbers so that responses mirror what the client sent. Only canonical
// decimal strings qualify: forms like "042" or "+7" parse as integers but
// are not valid JSON numbers, so they stay strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil &&
		strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// =============================================================================
// Requests
// =============================================================================

// CacheRequest addresses a cache entry, either by explicit key or by the
// (text, voiceId) pair the key is derived from.
type CacheRequest struct {
	CacheKey string `json:"cacheKey"`
	Text     string `json:"text"`
	VoiceID  string `json:"voiceId"`
}

// StoreCacheRequest stores an audio payload under a cache key.
type StoreCacheRequest struct {
	CacheRequest
	AudioData string `json:"audioData"`
}

// TrackQuestionResultRequest records one coarse scoring observation.
type TrackQuestionResultRequest struct {
	UUID       string `json:"uuid"`
	Difficulty string `json:"difficulty"`
	IsCorrect  bool   `json:"isCorrect"`
}

// UserRequest addresses per-user state (scoring stats, vocab misses).
type UserRequest struct {
	UUID string `json:"uuid"`
}

// TrackDetailedResponseRequest records one detailed response observation.
type TrackDetailedResponseRequest struct {
	UUID         string   `json:"uuid"`
	QuestionID   ID       `json:"questionId"`
	IsCorrect    bool     `json:"isCorrect"`
	ResponseTime *float64 `json:"responseTime"`
	Difficulty   string   `json:"difficulty"`
	QuestionType string   `json:"questionType"`
}

// QuestionAnalyticsRequest addresses the global stats of one question.
type QuestionAnalyticsRequest struct {
	QuestionID ID `json:"questionId"`
}

// TrackVocabMissRequest records missed vocabulary words for a user.
type TrackVocabMissRequest struct {
	UUID  string   `json:"uuid"`
	Words []string `json:"words"`
}

// =============================================================================
// Responses
// =============================================================================

// Response type discriminators.
const (
	TypeError                   = "error"
	TypeCacheCheckResult        = "cache_check_result"
	TypeCacheStoreResult        = "cache_store_result"
	TypeEvictCacheResult        = "evict_cache_result"
	TypeClearCacheResult        = "clear_cache_result"
	TypeStatsResult             = "stats_result"
	TypeQuestionResultTracked   = "question_result_tracked"
	TypeScoringStatsResult      = "scoring_stats_result"
	TypeScoringStatsCleared     = "scoring_stats_cleared"
	TypeDetailedResponseTracked = "detailed_response_tracked"
	TypeQuestionAnalyticsResult = "question_analytics_result"
	TypeUserQuestionPerformance = "user_question_performance_result"
	TypeTrackVocabMissResult    = "track_vocab_miss_result"
	TypeVocabMissStats          = "vocab_miss_stats"
	TypeClearVocabMissResult    = "clear_vocab_miss_result"
	TypePong                    = "pong"
)

// ErrorResponse is the generic error reply. It is the only response shape
// shared by all operations.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError creates an error response.
func NewError(message string) *ErrorResponse {
	return &ErrorResponse{Type: TypeError, Message: message}
}

// NewErrorf creates an error response with a formatted message.
func NewErrorf(format string, args ...interface{}) *ErrorResponse {
	return NewError(fmt.Sprintf(format, args...))
}

// CacheCheckResult answers check_cache.
type CacheCheckResult struct {
	Type      string  `json:"type"`
	CacheKey  string  `json:"cacheKey"`
	Exists    bool    `json:"exists"`
	AudioData *string `json:"audioData"`
}

// CacheStoreResult answers store_cache.
type CacheStoreResult struct {
	Type     string `json:"type"`
	CacheKey string `json:"cacheKey"`
	Success  bool   `json:"success"`
}

// EvictCacheResult answers evict_cache.
type EvictCacheResult struct {
	Type     string `json:"type"`
	CacheKey string `json:"cacheKey"`
	Evicted  bool   `json:"evicted"`
}

// ClearCacheResult answers clear_cache.
type ClearCacheResult struct {
	Type    string `json:"type"`
	Cleared int64  `json:"cleared"`
}

// StatsResult answers get_stats. SizeMB keeps the two-decimal string form
// the web clients already parse.
type StatsResult struct {
	Type   string   `json:"type"`
	Count  int      `json:"count"`
	SizeMB string   `json:"sizeMB"`
	Keys   []string `json:"keys"`
}

// QuestionResultTracked answers track_question_result.
type QuestionResultTracked struct {
	Type           string `json:"type"`
	UUID           string `json:"uuid"`
	Difficulty     string `json:"difficulty"`
	IsCorrect      bool   `json:"isCorrect"`
	TotalAttempts  int64  `json:"totalAttempts"`
	CorrectAnswers int64  `json:"correctAnswers"`
	SuccessRate    int64  `json:"successRate"`
}

// LevelScore is one difficulty level's coarse counters.
type LevelScore struct {
	Attempts    int64 `json:"attempts"`
	Correct     int64 `json:"correct"`
	SuccessRate int64 `json:"successRate"`
}

// ScoringStatsResult answers get_scoring_stats.
type ScoringStatsResult struct {
	Type  string                `json:"type"`
	UUID  string                `json:"uuid"`
	Stats map[string]LevelScore `json:"stats"`
}

// ScoringStatsCleared answers clear_scoring_stats.
type ScoringStatsCleared struct {
	Type         string `json:"type"`
	UUID         string `json:"uuid"`
	DeletedCount int64  `json:"deletedCount"`
}

// DetailedResponseTracked answers track_detailed_question_response. The
// question-level and user-level aggregates are reported side by side;
// Recorded reflects whether the individual response record was durably
// written (the aggregates may degrade independently).
type DetailedResponseTracked struct {
	Type            string `json:"type"`
	QuestionID      ID     `json:"questionId"`
	Recorded        bool   `json:"recorded"`
	TotalAttempts   int64  `json:"totalAttempts"`
	SuccessRate     int64  `json:"successRate"`
	AvgResponseTime *int64 `json:"avgResponseTime"`
	UserAttempts    int64  `json:"userAttempts"`
	UserSuccessRate int64  `json:"userSuccessRate"`
}

// QuestionStatsPayload is the wire form of a question's global aggregate.
type QuestionStatsPayload struct {
	TotalAttempts   int64  `json:"totalAttempts"`
	CorrectAttempts int64  `json:"correctAttempts"`
	SuccessRate     int64  `json:"successRate"`
	AvgResponseTime *int64 `json:"avgResponseTime"`
	LastAnswered    int64  `json:"lastAnswered"`
	Difficulty      string `json:"difficulty"`
	QuestionType    string `json:"questionType"`
}

// QuestionAnalyticsResult answers get_question_analytics. Stats is null
// when the question has no recorded attempts.
type QuestionAnalyticsResult struct {
	Type       string                `json:"type"`
	QuestionID ID                    `json:"questionId"`
	Stats      *QuestionStatsPayload `json:"stats"`
}

// QuestionPerformance is one question's per-user aggregate in a
// performance listing.
type QuestionPerformance struct {
	QuestionID    ID     `json:"questionId"`
	Attempts      int64  `json:"attempts"`
	Correct       int64  `json:"correct"`
	SuccessRate   int64  `json:"successRate"`
	LastAttempted int64  `json:"lastAttempted"`
	Difficulty    string `json:"difficulty"`
	QuestionType  string `json:"questionType"`
}

// UserQuestionPerformanceResult answers get_user_question_performance.
type UserQuestionPerformanceResult struct {
	Type                 string                `json:"type"`
	UUID                 string                `json:"uuid"`
	QuestionPerformances []QuestionPerformance `json:"questionPerformances"`
}

// TrackVocabMissResult answers track_vocab_miss.
type TrackVocabMissResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Tracked int    `json:"tracked"`
}

// VocabMissStats answers get_vocab_miss_stats.
type VocabMissStats struct {
	Type  string           `json:"type"`
	UUID  string           `json:"uuid"`
	Stats map[string]int64 `json:"stats"`
}

// ClearVocabMissResult answers clear_vocab_miss.
type ClearVocabMissResult struct {
	Type    string `json:"type"`
	UUID    string `json:"uuid"`
	Deleted int64  `json:"deleted"`
}

// Pong answers ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
