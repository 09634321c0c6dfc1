// Package handler provides request handling for the lexcache protocol.
//
// Handlers are organized by concern (cache, scoring, detailed analytics,
// vocabulary) with one handler per action. The dispatcher is stateless
// across messages: each inbound message is a single independent transaction,
// and every message produces exactly one response.
package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/lexcache/lexcache/internal/logging"
	"github.com/lexcache/lexcache/internal/metrics"
	"github.com/lexcache/lexcache/internal/protocol"
	"github.com/lexcache/lexcache/internal/retention"
	"github.com/lexcache/lexcache/internal/store"
)

var log = logging.Component("handler")

// =============================================================================
// Key Schema
// =============================================================================

// Key prefixes for the data classes persisted in the backing store. The
// prefixes namespace the store; user identifiers namespace within them.
const (
	audioKeyPrefix     = "audio:"
	scoringKeyPrefix   = "scoring:"
	responseKeyPrefix  = "response:"
	questionKeyPrefix  = "question_stats:"
	userStatsKeyPrefix = "user_question_stats:"
	vocabMissKeyPrefix = "vocab_miss:"
)

func audioKey(cacheKey string) string { return audioKeyPrefix + cacheKey }

func scoringKey(uuid, difficulty, counter string) string {
	return scoringKeyPrefix + uuid + ":" + difficulty + ":" + counter
}

func responseKey(uuid, questionID string, timestampMs int64) string {
	return responseKeyPrefix + uuid + ":" + questionID + ":" + formatInt(timestampMs)
}

func questionStatsKey(questionID string) string { return questionKeyPrefix + questionID }

func userStatsKey(uuid, questionID string) string {
	return userStatsKeyPrefix + uuid + ":" + questionID
}

func vocabMissKey(uuid, word string) string { return vocabMissKeyPrefix + uuid + ":" + word }

func formatInt(n int64) string { return strconv.FormatInt(n, 10) }

// =============================================================================
// Handler
// =============================================================================

// handlerFunc handles one decoded request and returns the response message.
type handlerFunc func(ctx context.Context, raw []byte) interface{}

// Handler routes inbound messages to per-action handlers.
type Handler struct {
	store   *store.Store
	policy  *retention.Policy
	metrics *metrics.Registry

	routes map[string]handlerFunc
}

// New creates a handler over the given store and retention policy.
// The metrics registry may be nil.
func New(st *store.Store, policy *retention.Policy, reg *metrics.Registry) *Handler {
	h := &Handler{
		store:   st,
		policy:  policy,
		metrics: reg,
	}

	h.routes = map[string]handlerFunc{
		"check_cache": h.handleCheckCache,
		"store_cache": h.handleStoreCache,
		"evict_cache": h.handleEvictCache,
		"clear_cache": h.handleClearCache,
		"get_stats":   h.handleGetStats,
		"ping":        h.handlePing,

		"track_question_result": h.handleTrackQuestionResult,
		"get_scoring_stats":     h.handleGetScoringStats,
		"clear_scoring_stats":   h.handleClearScoringStats,

		"track_detailed_question_response": h.handleTrackDetailedResponse,
		"get_question_analytics":           h.handleGetQuestionAnalytics,
		"get_user_question_performance":    h.handleGetUserQuestionPerformance,

		"track_vocab_miss":     h.handleTrackVocabMiss,
		"get_vocab_miss_stats": h.handleGetVocabMissStats,
		"clear_vocab_miss":     h.handleClearVocabMiss,
	}

	return h
}

// Handle dispatches one raw inbound message and always returns exactly one
// response message. Store failures are converted to responses here; nothing
// propagates to the connection layer.
func (h *Handler) Handle(ctx context.Context, raw []byte) interface{} {
	start := time.Now()

	action, err := protocol.Action(raw)
	if err != nil {
		h.observe("_invalid", start, true)
		log.Warn("undecodable message", "error", err)
		return protocol.NewError("Invalid message format")
	}

	fn, ok := h.routes[action]
	if !ok {
		h.observe("_unknown", start, true)
		log.Warn("unknown action", "action", action)
		return protocol.NewErrorf("Unknown action: %s", action)
	}

	ctx = logging.ContextWithAction(ctx, action)
	resp := fn(ctx, raw)

	_, isErr := resp.(*protocol.ErrorResponse)
	h.observe(action, start, isErr)

	return resp
}

func (h *Handler) observe(action string, start time.Time, isError bool) {
	if h.metrics != nil {
		h.metrics.Observe(action, time.Since(start), isError)
	}
}

// handlePing answers the liveness probe.
func (h *Handler) handlePing(ctx context.Context, raw []byte) interface{} {
	return &protocol.Pong{Type: protocol.TypePong, Timestamp: time.Now().UnixMilli()}
}
