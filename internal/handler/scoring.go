// Coarse scoring handlers: per-user, per-difficulty attempt counters.
//
// These are the legacy counters. They use atomic increments rather than
// read-modify-write because the update is a simple increment and two
// connections may track results for the same user concurrently.
package handler

import (
	"context"
	"strconv"

	"github.com/lexcache/lexcache/internal/analytics"
	"github.com/lexcache/lexcache/internal/protocol"
	"github.com/lexcache/lexcache/internal/validation"
)

func (h *Handler) handleTrackQuestionResult(ctx context.Context, raw []byte) interface{} {
	var req protocol.TrackQuestionResultRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}

	if err := validation.ValidateUserID(req.UUID); err != nil {
		return protocol.NewError(err.Error())
	}
	if err := validation.ValidateDifficulty(req.Difficulty); err != nil {
		return protocol.NewError(err.Error())
	}

	attempts, err := h.store.Incr(ctx, scoringKey(req.UUID, req.Difficulty, "attempts"))
	if err != nil {
		log.Error("track question result failed", "uuid", req.UUID, "error", err)
		return protocol.NewError("Question result tracking failed")
	}

	var correct int64
	if req.IsCorrect {
		correct, err = h.store.Incr(ctx, scoringKey(req.UUID, req.Difficulty, "correct"))
	} else {
		correct, err = h.getCounter(ctx, scoringKey(req.UUID, req.Difficulty, "correct"))
	}
	if err != nil {
		log.Error("track question result failed", "uuid", req.UUID, "error", err)
		return protocol.NewError("Question result tracking failed")
	}

	rate := analytics.SuccessRate(correct, attempts)

	log.Debug("question result tracked", "uuid", req.UUID, "difficulty", req.Difficulty,
		"correct", req.IsCorrect, "success_rate", rate)

	return &protocol.QuestionResultTracked{
		Type:           protocol.TypeQuestionResultTracked,
		UUID:           req.UUID,
		Difficulty:     req.Difficulty,
		IsCorrect:      req.IsCorrect,
		TotalAttempts:  attempts,
		CorrectAnswers: correct,
		SuccessRate:    rate,
	}
}

func (h *Handler) handleGetScoringStats(ctx context.Context, raw []byte) interface{} {
	var req protocol.UserRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}
	if err := validation.ValidateUserID(req.UUID); err != nil {
		return protocol.NewError(err.Error())
	}

	stats := make(map[string]protocol.LevelScore, len(validation.DifficultyLevels))

	if h.store.Ready() {
		for _, level := range validation.DifficultyLevels {
			attempts, err := h.getCounter(ctx, scoringKey(req.UUID, level, "attempts"))
			if err != nil {
				log.Error("get scoring stats failed", "uuid", req.UUID, "error", err)
				return protocol.NewError("Get scoring stats failed")
			}
			correct, err := h.getCounter(ctx, scoringKey(req.UUID, level, "correct"))
			if err != nil {
				log.Error("get scoring stats failed", "uuid", req.UUID, "error", err)
				return protocol.NewError("Get scoring stats failed")
			}

			stats[level] = protocol.LevelScore{
				Attempts:    attempts,
				Correct:     correct,
				SuccessRate: analytics.SuccessRate(correct, attempts),
			}
		}
	} else {
		// Degraded store: report zeroed counters instead of failing
		// the whole response.
		for _, level := range validation.DifficultyLevels {
			stats[level] = protocol.LevelScore{}
		}
	}

	return &protocol.ScoringStatsResult{
		Type:  protocol.TypeScoringStatsResult,
		UUID:  req.UUID,
		Stats: stats,
	}
}

func (h *Handler) handleClearScoringStats(ctx context.Context, raw []byte) interface{} {
	var req protocol.UserRequest
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return protocol.NewError("Invalid message format")
	}
	if err := validation.ValidateUserID(req.UUID); err != nil {
		return protocol.NewError(err.Error())
	}

	keys, err := h.store.Scan(ctx, scoringKeyPrefix+req.UUID+":*")
	if err != nil {
		log.Error("clear scoring stats failed", "uuid", req.UUID, "error", err)
		return protocol.NewError("Clear scoring stats failed")
	}

	var deleted int64
	if len(keys) > 0 {
		deleted, err = h.store.Delete(ctx, keys...)
		if err != nil {
			log.Error("clear scoring stats failed", "uuid", req.UUID, "error", err)
			return protocol.NewError("Clear scoring stats failed")
		}
	}

	log.Info("cleared scoring stats", "uuid", req.UUID, "deleted", deleted)
	return &protocol.ScoringStatsCleared{
		Type:         protocol.TypeScoringStatsCleared,
		UUID:         req.UUID,
		DeletedCount: deleted,
	}
}

// getCounter reads an integer counter key, treating absence as zero.
func (h *Handler) getCounter(ctx context.Context, key string) (int64, error) {
	raw, found, err := h.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found || raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A non-numeric counter means foreign data under our key; count
		// it as zero rather than failing the request.
		log.Warn("non-numeric counter value", "key", key, "value", raw)
		return 0, nil
	}
	return n, nil
}
