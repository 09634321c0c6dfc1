// Detailed response tracking: write-once response records plus two
// independent aggregates (global per-question and per-user per-question)
// updated from the same observation.
package handler

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lexcache/lexcache/internal/analytics"
	"github.com/lexcache/lexcache/internal/errors"
	"github.com/lexcache/lexcache/internal/protocol"
	"github.com/lexcache/lexcache/internal/retention"
	"github.com/lexcache/lexcache/internal/validation"
)

func (h *Handler) handleTrackDetailedResponse(ctx context.Context, raw []byte) interface{} {
	var req protocol.TrackDetailedResponseRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}

	if err := validation.ValidateUserID(req.UUID); err != nil {
		return protocol.NewError(err.Error())
	}
	if err := validation.ValidateQuestionID(string(req.QuestionID)); err != nil {
		return protocol.NewError(err.Error())
	}
	if req.Difficulty != "" {
		if err := validation.ValidateDifficulty(req.Difficulty); err != nil {
			return protocol.NewError(err.Error())
		}
	}

	now := time.Now().UnixMilli()
	questionID := string(req.QuestionID)

	obs := analytics.Observation{
		UserID:       req.UUID,
		QuestionID:   questionID,
		Correct:      req.IsCorrect,
		Difficulty:   req.Difficulty,
		QuestionType: req.QuestionType,
		TimestampMs:  now,
	}
	if req.ResponseTime != nil {
		ms := int64(math.Round(*req.ResponseTime))
		obs.ResponseTimeMs = &ms
	}

	// The individual record is written first; a failed aggregate update
	// must not block acknowledging a record that is already durable.
	record := analytics.ResponseRecord{
		UserID:         obs.UserID,
		QuestionID:     obs.QuestionID,
		Correct:        obs.Correct,
		ResponseTimeMs: obs.ResponseTimeMs,
		Difficulty:     obs.Difficulty,
		QuestionType:   obs.QuestionType,
		TimestampMs:    now,
	}
	recorded := h.store.SafeHashWrite(ctx,
		responseKey(obs.UserID, obs.QuestionID, now),
		record.Fields(),
		h.policy.TTL(retention.IndividualResponses))

	// Both aggregates are attempted even if one fails: they are separate
	// counters fed by the same event, with no cross-counter invariant.
	qstats := h.updateQuestionStats(ctx, obs)
	ustats := h.updateUserQuestionStats(ctx, obs)

	resp := &protocol.DetailedResponseTracked{
		Type:       protocol.TypeDetailedResponseTracked,
		QuestionID: req.QuestionID,
		Recorded:   recorded,
	}
	if qstats != nil {
		resp.TotalAttempts = qstats.TotalAttempts
		resp.SuccessRate = qstats.SuccessRate
		resp.AvgResponseTime = qstats.AvgResponseTimeMs
	}
	if ustats != nil {
		resp.UserAttempts = ustats.Attempts
		resp.UserSuccessRate = ustats.SuccessRate
	}

	log.Debug("detailed response tracked", "uuid", req.UUID, "question", questionID,
		"correct", req.IsCorrect, "recorded", recorded)
	return resp
}

// updateQuestionStats folds the observation into the global per-question
// aggregate. Returns nil when the current aggregate could not be read (the
// update is skipped entirely rather than restarting counters from zero).
func (h *Handler) updateQuestionStats(ctx context.Context, obs analytics.Observation) *analytics.QuestionStats {
	key := questionStatsKey(obs.QuestionID)

	fields, err := h.store.HGetAll(ctx, key)
	if err != nil {
		if !errors.IsNotReady(err) {
			log.Error("question stats read failed", "key", key, "error", err)
		}
		return nil
	}

	stats, err := analytics.ParseQuestionStats(obs.QuestionID, fields)
	if err != nil {
		log.Error("question stats corrupt, skipping update", "key", key, "error", err)
		return nil
	}

	stats.Apply(obs)

	// The TTL is refreshed on every update so active questions never expire.
	if !h.store.SafeHashWrite(ctx, key, stats.Fields(), h.policy.TTL(retention.QuestionStats)) {
		log.Warn("question stats write not verified", "key", key)
	}
	return stats
}

// updateUserQuestionStats folds the observation into the per-user aggregate.
func (h *Handler) updateUserQuestionStats(ctx context.Context, obs analytics.Observation) *analytics.UserQuestionStats {
	key := userStatsKey(obs.UserID, obs.QuestionID)

	fields, err := h.store.HGetAll(ctx, key)
	if err != nil {
		if !errors.IsNotReady(err) {
			log.Error("user question stats read failed", "key", key, "error", err)
		}
		return nil
	}

	stats, err := analytics.ParseUserQuestionStats(obs.UserID, obs.QuestionID, fields)
	if err != nil {
		log.Error("user question stats corrupt, skipping update", "key", key, "error", err)
		return nil
	}

	stats.Apply(obs)

	if !h.store.SafeHashWrite(ctx, key, stats.Fields(), h.policy.TTL(retention.UserQuestionStats)) {
		log.Warn("user question stats write not verified", "key", key)
	}
	return stats
}

func (h *Handler) handleGetQuestionAnalytics(ctx context.Context, raw []byte) interface{} {
	var req protocol.QuestionAnalyticsRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}
	if err := validation.ValidateQuestionID(string(req.QuestionID)); err != nil {
		return protocol.NewError(err.Error())
	}

	resp := &protocol.QuestionAnalyticsResult{
		Type:       protocol.TypeQuestionAnalyticsResult,
		QuestionID: req.QuestionID,
	}

	fields, err := h.store.HGetAll(ctx, questionStatsKey(string(req.QuestionID)))
	if err != nil {
		if errors.IsNotReady(err) {
			// Degraded store: report absent data, not a failed response.
			return resp
		}
		log.Error("question analytics read failed", "question", req.QuestionID, "error", err)
		return protocol.NewError("Question analytics retrieval failed")
	}
	if len(fields) == 0 {
		return resp
	}

	stats, err := analytics.ParseQuestionStats(string(req.QuestionID), fields)
	if err != nil {
		log.Error("question analytics corrupt", "question", req.QuestionID, "error", err)
		return protocol.NewError("Question analytics retrieval failed")
	}

	resp.Stats = &protocol.QuestionStatsPayload{
		TotalAttempts:   stats.TotalAttempts,
		CorrectAttempts: stats.CorrectAttempts,
		SuccessRate:     stats.SuccessRate,
		AvgResponseTime: stats.AvgResponseTimeMs,
		LastAnswered:    stats.LastAnsweredMs,
		Difficulty:      stats.Difficulty,
		QuestionType:    stats.QuestionType,
	}
	return resp
}

func (h *Handler) handleGetUserQuestionPerformance(ctx context.Context, raw []byte) interface{} {
	var req protocol.UserRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}
	if err := validation.ValidateUserID(req.UUID); err != nil {
		return protocol.NewError(err.Error())
	}

	resp := &protocol.UserQuestionPerformanceResult{
		Type:                 protocol.TypeUserQuestionPerformance,
		UUID:                 req.UUID,
		QuestionPerformances: []protocol.QuestionPerformance{},
	}

	prefix := userStatsKeyPrefix + req.UUID + ":"
	keys, err := h.store.Scan(ctx, prefix+"*")
	if err != nil {
		if errors.IsNotReady(err) {
			return resp
		}
		log.Error("user performance scan failed", "uuid", req.UUID, "error", err)
		return protocol.NewError("User question performance retrieval failed")
	}

	for _, key := range keys {
		questionID := strings.TrimPrefix(key, prefix)

		fields, err := h.store.HGetAll(ctx, key)
		if err != nil {
			log.Error("user performance read failed", "key", key, "error", err)
			return protocol.NewError("User question performance retrieval failed")
		}
		if len(fields) == 0 {
			// Expired between scan and read.
			continue
		}

		stats, err := analytics.ParseUserQuestionStats(req.UUID, questionID, fields)
		if err != nil {
			log.Warn("skipping corrupt user question stats", "key", key, "error", err)
			continue
		}

		resp.QuestionPerformances = append(resp.QuestionPerformances, protocol.QuestionPerformance{
			QuestionID:    protocol.ID(questionID),
			Attempts:      stats.Attempts,
			Correct:       stats.Correct,
			SuccessRate:   stats.SuccessRate,
			LastAttempted: stats.LastAttemptedMs,
			Difficulty:    stats.Difficulty,
			QuestionType:  stats.QuestionType,
		})
	}

	// Most recently attempted first; ties broken by question for a
	// stable listing.
	sort.Slice(resp.QuestionPerformances, func(i, j int) bool {
		a, b := resp.QuestionPerformances[i], resp.QuestionPerformances[j]
		if a.LastAttempted != b.LastAttempted {
			return a.LastAttempted > b.LastAttempted
		}
		return a.QuestionID < b.QuestionID
	})

	return resp
}
