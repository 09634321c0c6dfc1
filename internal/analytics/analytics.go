// Package analytics implements the incremental statistics aggregation engine.
//
// Statistics are recomputed once per observation from a running total and
// the new observation, never from full history replay. The same observation
// feeds two independent aggregates: the global per-question stats and the
// per-user per-question stats. They are separate counters updated from one
// input event, not derived from one another.
//
// All aggregate state lives in the backing store as string hash fields; this
// package owns the encoding. The service holds no authoritative copy: every
// update is read-modify-write against the store's current value.
package analytics

import (
	"fmt"
	"math"
	"strconv"

	"github.com/lexcache/lexcache/internal/store"
)

// Observation is a single answered-question event.
type Observation struct {
	UserID     string
	QuestionID string
	Correct    bool

	// ResponseTimeMs is nil when the client did not measure a response
	// time. Such observations still count as attempts but do not move
	// the response-time average.
	ResponseTimeMs *int64

	Difficulty   string
	QuestionType string
	TimestampMs  int64
}

// SuccessRate returns the integer success percentage round(100*correct/attempts),
// or 0 when there are no attempts.
func SuccessRate(correct, attempts int64) int64 {
	if attempts <= 0 {
		return 0
	}
	return int64(math.Round(float64(correct) / float64(attempts) * 100))
}

// =============================================================================
// Question Stats (global per-question aggregate)
// =============================================================================

// QuestionStats is the global aggregate for one question.
type QuestionStats struct {
	QuestionID string

	TotalAttempts       int64
	CorrectAttempts     int64
	TotalResponseTimeMs int64

	// SuccessRate is the derived integer percentage.
	SuccessRate int64

	// AvgResponseTimeMs is derived only over attempts that supplied a
	// response time; nil until the first measured attempt.
	AvgResponseTimeMs *int64

	LastAnsweredMs int64
	Difficulty     string
	QuestionType   string
}

// Apply folds one observation into the aggregate.
func (s *QuestionStats) Apply(obs Observation) {
	s.TotalAttempts++
	if obs.Correct {
		s.CorrectAttempts++
	}
	if obs.ResponseTimeMs != nil {
		s.TotalResponseTimeMs += *obs.ResponseTimeMs
	}

	s.SuccessRate = SuccessRate(s.CorrectAttempts, s.TotalAttempts)

	// The average is only recomputed when this observation measured a
	// response time; otherwise the previous value (or nil) carries over.
	if obs.ResponseTimeMs != nil {
		avg := int64(math.Round(float64(s.TotalResponseTimeMs) / float64(s.TotalAttempts)))
		s.AvgResponseTimeMs = &avg
	}

	s.LastAnsweredMs = obs.TimestampMs
	if obs.Difficulty != "" {
		s.Difficulty = obs.Difficulty
	}
	if obs.QuestionType != "" {
		s.QuestionType = obs.QuestionType
	}
}

// Fields encodes the aggregate as ordered hash fields for a safe hash write.
// totalAttempts is first: it is the field the write guard verifies.
func (s *QuestionStats) Fields() []store.Field {
	fields := []store.Field{
		{Name: "totalAttempts", Value: strconv.FormatInt(s.TotalAttempts, 10)},
		{Name: "correctAttempts", Value: strconv.FormatInt(s.CorrectAttempts, 10)},
		{Name: "totalResponseTime", Value: strconv.FormatInt(s.TotalResponseTimeMs, 10)},
		{Name: "successRate", Value: strconv.FormatInt(s.SuccessRate, 10)},
		{Name: "lastAnswered", Value: strconv.FormatInt(s.LastAnsweredMs, 10)},
		{Name: "difficulty", Value: s.Difficulty},
		{Name: "questionType", Value: s.QuestionType},
	}
	if s.AvgResponseTimeMs != nil {
		fields = append(fields, store.Field{
			Name:  "avgResponseTime",
			Value: strconv.FormatInt(*s.AvgResponseTimeMs, 10),
		})
	}
	return fields
}

// ParseQuestionStats decodes the aggregate from stored hash fields.
// An empty map yields a zeroed aggregate for the question.
func ParseQuestionStats(questionID string, fields map[string]string) (*QuestionStats, error) {
	s := &QuestionStats{QuestionID: questionID}
	if len(fields) == 0 {
		return s, nil
	}

	var err error
	if s.TotalAttempts, err = parseCount(fields, "totalAttempts"); err != nil {
		return nil, err
	}
	if s.CorrectAttempts, err = parseCount(fields, "correctAttempts"); err != nil {
		return nil, err
	}
	if s.TotalResponseTimeMs, err = parseCount(fields, "totalResponseTime"); err != nil {
		return nil, err
	}
	if s.SuccessRate, err = parseCount(fields, "successRate"); err != nil {
		return nil, err
	}
	if s.LastAnsweredMs, err = parseCount(fields, "lastAnswered"); err != nil {
		return nil, err
	}
	if raw, ok := fields["avgResponseTime"]; ok && raw != "" {
		avg, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse avgResponseTime %q: %w", raw, err)
		}
		s.AvgResponseTimeMs = &avg
	}
	s.Difficulty = fields["difficulty"]
	s.QuestionType = fields["questionType"]

	return s, nil
}

// =============================================================================
// User Question Stats (per-user per-question aggregate)
// =============================================================================

// UserQuestionStats is the per-user aggregate for one question. Same
// monotonicity invariant as QuestionStats, scoped to one user.
type UserQuestionStats struct {
	UserID     string
	QuestionID string

	Attempts int64
	Correct  int64

	SuccessRate int64

	LastAttemptedMs int64
	Difficulty      string
	QuestionType    string
}

// Apply folds one observation into the aggregate.
func (s *UserQuestionStats) Apply(obs Observation) {
	s.Attempts++
	if obs.Correct {
		s.Correct++
	}
	s.SuccessRate = SuccessRate(s.Correct, s.Attempts)

	s.LastAttemptedMs = obs.TimestampMs
	if obs.Difficulty != "" {
		s.Difficulty = obs.Difficulty
	}
	if obs.QuestionType != "" {
		s.QuestionType = obs.QuestionType
	}
}

// Fields encodes the aggregate as ordered hash fields for a safe hash write.
func (s *UserQuestionStats) Fields() []store.Field {
	return []store.Field{
		{Name: "attempts", Value: strconv.FormatInt(s.Attempts, 10)},
		{Name: "correct", Value: strconv.FormatInt(s.Correct, 10)},
		{Name: "successRate", Value: strconv.FormatInt(s.SuccessRate, 10)},
		{Name: "lastAttempted", Value: strconv.FormatInt(s.LastAttemptedMs, 10)},
		{Name: "difficulty", Value: s.Difficulty},
		{Name: "questionType", Value: s.QuestionType},
	}
}

// ParseUserQuestionStats decodes the aggregate from stored hash fields.
func ParseUserQuestionStats(userID, questionID string, fields map[string]string) (*UserQuestionStats, error) {
	s := &UserQuestionStats{UserID: userID, QuestionID: questionID}
	if len(fields) == 0 {
		return s, nil
	}

	var err error
	if s.Attempts, err = parseCount(fields, "attempts"); err != nil {
		return nil, err
	}
	if s.Correct, err = parseCount(fields, "correct"); err != nil {
		return nil, err
	}
	if s.SuccessRate, err = parseCount(fields, "successRate"); err != nil {
		return nil, err
	}
	if s.LastAttemptedMs, err = parseCount(fields, "lastAttempted"); err != nil {
		return nil, err
	}
	s.Difficulty = fields["difficulty"]
	s.QuestionType = fields["questionType"]

	return s, nil
}

// =============================================================================
// Response Record
// =============================================================================

// ResponseRecord is the write-once snapshot of a single response. It is an
// audit trail, never mutated, independently enumerable by key pattern.
type ResponseRecord struct {
	UserID         string
	QuestionID     string
	Correct        bool
	ResponseTimeMs *int64
	Difficulty     string
	QuestionType   string
	TimestampMs    int64
}

// Fields encodes the record as ordered hash fields.
func (r *ResponseRecord) Fields() []store.Field {
	responseTime := ""
	if r.ResponseTimeMs != nil {
		responseTime = strconv.FormatInt(*r.ResponseTimeMs, 10)
	}
	return []store.Field{
		{Name: "uuid", Value: r.UserID},
		{Name: "questionId", Value: r.QuestionID},
		{Name: "isCorrect", Value: strconv.FormatBool(r.Correct)},
		{Name: "responseTime", Value: responseTime},
		{Name: "difficulty", Value: r.Difficulty},
		{Name: "questionType", Value: r.QuestionType},
		{Name: "timestamp", Value: strconv.FormatInt(r.TimestampMs, 10)},
	}
}

// =============================================================================
// Helpers
// =============================================================================

func parseCount(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	return n, nil
}
