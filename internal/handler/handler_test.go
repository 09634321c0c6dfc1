package handler

import (
	"context"
	"fmt"
	"testing"

	"github.com/lexcache/lexcache/internal/metrics"
	"github.com/lexcache/lexcache/internal/protocol"
	"github.com/lexcache/lexcache/internal/retention"
	"github.com/lexcache/lexcache/internal/testutil"

	"github.com/alicebob/miniredis/v2"
)

func newTestHandler(t *testing.T) (*Handler, *miniredis.Miniredis) {
	t.Helper()
	st, mr := testutil.NewStore(t)
	return New(st, retention.Default(), metrics.NewRegistry(0)), mr
}

func dispatch(h *Handler, msg string) interface{} {
	return h.Handle(context.Background(), []byte(msg))
}

func wantError(t *testing.T, resp interface{}, contains string) *protocol.ErrorResponse {
	t.Helper()
	errResp, ok := resp.(*protocol.ErrorResponse)
	if !ok {
		t.Fatalf("expected error response, got %T", resp)
	}
	if contains != "" && errResp.Message != contains {
		t.Fatalf("error message = %q, want %q", errResp.Message, contains)
	}
	return errResp
}

// =============================================================================
// Dispatch
// =============================================================================

func TestHandlePing(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := dispatch(h, `{"action":"ping"}`)
	pong, ok := resp.(*protocol.Pong)
	if !ok {
		t.Fatalf("expected pong, got %T", resp)
	}
	if pong.Type != protocol.TypePong {
		t.Errorf("type = %q, want %q", pong.Type, protocol.TypePong)
	}
	if pong.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestHandleUnknownAction(t *testing.T) {
	h, _ := newTestHandler(t)
	wantError(t, dispatch(h, `{"action":"bogus"}`), "Unknown action: bogus")
}

func TestHandleInvalidJSON(t *testing.T) {
	h, _ := newTestHandler(t)
	wantError(t, dispatch(h, `{not json`), "Invalid message format")
}

func TestHandleMissingAction(t *testing.T) {
	h, _ := newTestHandler(t)
	wantError(t, dispatch(h, `{"uuid":"u1"}`), "Invalid message format")
}

// =============================================================================
// Audio cache
// =============================================================================

func TestCacheStoreAndCheck(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := dispatch(h, `{"action":"check_cache","cacheKey":"abc123"}`)
	check := resp.(*protocol.CacheCheckResult)
	if check.Exists {
		t.Fatal("cache should be empty")
	}
	if check.AudioData != nil {
		t.Fatal("audioData should be null on miss")
	}

	resp = dispatch(h, `{"action":"store_cache","cacheKey":"abc123","audioData":"BASE64DATA"}`)
	stored := resp.(*protocol.CacheStoreResult)
	if !stored.Success {
		t.Fatal("store_cache failed")
	}
	if stored.CacheKey != "abc123" {
		t.Errorf("cacheKey = %q, want abc123", stored.CacheKey)
	}

	resp = dispatch(h, `{"action":"check_cache","cacheKey":"abc123"}`)
	check = resp.(*protocol.CacheCheckResult)
	if !check.Exists {
		t.Fatal("expected cache hit")
	}
	if check.AudioData == nil || *check.AudioData != "BASE64DATA" {
		t.Fatalf("audioData = %v, want BASE64DATA", check.AudioData)
	}
}

func TestCacheKeyDerivedFromText(t *testing.T) {
	h, _ := newTestHandler(t)

	// md5("hello_v1")
	const derived = "5117c8452fce9635d3bc8578373c6644"

	resp := dispatch(h, `{"action":"store_cache","text":"hello","voiceId":"v1","audioData":"DATA"}`)
	stored := resp.(*protocol.CacheStoreResult)
	if !stored.Success {
		t.Fatal("store_cache failed")
	}
	if stored.CacheKey != derived {
		t.Errorf("cacheKey = %q, want %q", stored.CacheKey, derived)
	}

	resp = dispatch(h, `{"action":"check_cache","text":"hello","voiceId":"v1"}`)
	if !resp.(*protocol.CacheCheckResult).Exists {
		t.Fatal("derived-key lookup missed")
	}
}

func TestCacheStoreRequiresAudioData(t *testing.T) {
	h, _ := newTestHandler(t)
	resp := dispatch(h, `{"action":"store_cache","cacheKey":"abc123"}`)
	wantError(t, resp, "")
}

func TestCacheKeyRequiresTextAndVoice(t *testing.T) {
	h, _ := newTestHandler(t)
	wantError(t, dispatch(h, `{"action":"check_cache","text":"hello"}`), "")
	wantError(t, dispatch(h, `{"action":"check_cache","voiceId":"v1"}`), "")
	wantError(t, dispatch(h, `{"action":"check_cache"}`), "")
}

func TestCacheEvict(t *testing.T) {
	h, _ := newTestHandler(t)

	dispatch(h, `{"action":"store_cache","cacheKey":"k1","audioData":"D"}`)

	resp := dispatch(h, `{"action":"evict_cache","cacheKey":"k1"}`)
	if !resp.(*protocol.EvictCacheResult).Evicted {
		t.Fatal("expected eviction")
	}

	resp = dispatch(h, `{"action":"evict_cache","cacheKey":"k1"}`)
	if resp.(*protocol.EvictCacheResult).Evicted {
		t.Fatal("evicting absent key should report false")
	}
}

func TestCacheClearAndStats(t *testing.T) {
	h, mr := newTestHandler(t)

	for i := 0; i < 3; i++ {
		dispatch(h, fmt.Sprintf(`{"action":"store_cache","cacheKey":"k%d","audioData":"1234"}`, i))
	}
	// Unrelated keys must not be counted or cleared.
	mr.Set("scoring:u1:B1:attempts", "5")

	resp := dispatch(h, `{"action":"get_stats"}`)
	stats := resp.(*protocol.StatsResult)
	if stats.Count != 3 {
		t.Fatalf("count = %d, want 3", stats.Count)
	}
	if len(stats.Keys) != 3 {
		t.Fatalf("keys = %v, want 3 entries", stats.Keys)
	}
	for _, k := range stats.Keys {
		if len(k) != 2 || k[0] != 'k' {
			t.Errorf("key %q not stripped of prefix", k)
		}
	}

	resp = dispatch(h, `{"action":"clear_cache"}`)
	if got := resp.(*protocol.ClearCacheResult).Cleared; got != 3 {
		t.Fatalf("cleared = %d, want 3", got)
	}

	if !mr.Exists("scoring:u1:B1:attempts") {
		t.Error("clear_cache removed a non-cache key")
	}
}

// =============================================================================
// Coarse scoring
// =============================================================================

func TestTrackQuestionResult(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := dispatch(h, `{"action":"track_question_result","uuid":"u1","difficulty":"B1","isCorrect":true}`)
	tracked := resp.(*protocol.QuestionResultTracked)
	if tracked.TotalAttempts != 1 || tracked.CorrectAnswers != 1 || tracked.SuccessRate != 100 {
		t.Fatalf("after 1 correct: %+v", tracked)
	}

	resp = dispatch(h, `{"action":"track_question_result","uuid":"u1","difficulty":"B1","isCorrect":false}`)
	tracked = resp.(*protocol.QuestionResultTracked)
	if tracked.TotalAttempts != 2 || tracked.CorrectAnswers != 1 || tracked.SuccessRate != 50 {
		t.Fatalf("after 1 correct, 1 wrong: %+v", tracked)
	}
}

func TestTrackQuestionResultRejectsBadDifficulty(t *testing.T) {
	h, _ := newTestHandler(t)
	wantError(t, dispatch(h, `{"action":"track_question_result","uuid":"u1","difficulty":"Z9","isCorrect":true}`), "")
}

func TestGetScoringStats(t *testing.T) {
	h, _ := newTestHandler(t)

	dispatch(h, `{"action":"track_question_result","uuid":"u1","difficulty":"A1","isCorrect":true}`)
	dispatch(h, `{"action":"track_question_result","uuid":"u1","difficulty":"A1","isCorrect":true}`)
	dispatch(h, `{"action":"track_question_result","uuid":"u1","difficulty":"C2","isCorrect":false}`)

	resp := dispatch(h, `{"action":"get_scoring_stats","uuid":"u1"}`)
	stats := resp.(*protocol.ScoringStatsResult)

	if len(stats.Stats) != 6 {
		t.Fatalf("expected all 6 levels, got %d", len(stats.Stats))
	}
	if a1 := stats.Stats["A1"]; a1.Attempts != 2 || a1.Correct != 2 || a1.SuccessRate != 100 {
		t.Errorf("A1 = %+v", a1)
	}
	if c2 := stats.Stats["C2"]; c2.Attempts != 1 || c2.Correct != 0 || c2.SuccessRate != 0 {
		t.Errorf("C2 = %+v", c2)
	}
	if b2 := stats.Stats["B2"]; b2.Attempts != 0 {
		t.Errorf("untouched level B2 = %+v", b2)
	}
}

func TestClearScoringStats(t *testing.T) {
	h, mr := newTestHandler(t)

	dispatch(h, `{"action":"track_question_result","uuid":"u1","difficulty":"A1","isCorrect":true}`)
	dispatch(h, `{"action":"track_question_result","uuid":"u1","difficulty":"B2","isCorrect":false}`)
	dispatch(h, `{"action":"track_question_result","uuid":"other","difficulty":"A1","isCorrect":true}`)

	resp := dispatch(h, `{"action":"clear_scoring_stats","uuid":"u1"}`)
	cleared := resp.(*protocol.ScoringStatsCleared)
	// A1 correct wrote attempts+correct, B2 wrong wrote attempts only.
	if cleared.DeletedCount != 3 {
		t.Fatalf("deletedCount = %d, want 3", cleared.DeletedCount)
	}

	if !mr.Exists("scoring:other:A1:attempts") {
		t.Error("another user's counters were cleared")
	}
}

// =============================================================================
// Detailed analytics
// =============================================================================

func TestTrackDetailedResponse(t *testing.T) {
	h, _ := newTestHandler(t)

	times := []int{1200, 800, 1000}
	var last *protocol.DetailedResponseTracked
	for i, ms := range times {
		correct := i != 1
		resp := dispatch(h, fmt.Sprintf(
			`{"action":"track_detailed_question_response","uuid":"u1","questionId":"q42","isCorrect":%t,"responseTime":%d,"difficulty":"B1","questionType":"multiple_choice"}`,
			correct, ms))
		last = resp.(*protocol.DetailedResponseTracked)
		if !last.Recorded {
			t.Fatalf("attempt %d not recorded", i+1)
		}
	}

	if last.TotalAttempts != 3 {
		t.Errorf("totalAttempts = %d, want 3", last.TotalAttempts)
	}
	if last.SuccessRate != 67 {
		t.Errorf("successRate = %d, want 67", last.SuccessRate)
	}
	if last.AvgResponseTime == nil || *last.AvgResponseTime != 1000 {
		t.Errorf("avgResponseTime = %v, want 1000", last.AvgResponseTime)
	}
	if last.UserAttempts != 3 || last.UserSuccessRate != 67 {
		t.Errorf("user aggregate = %d/%d, want 3/67", last.UserAttempts, last.UserSuccessRate)
	}
}

func TestTrackDetailedResponseNilResponseTime(t *testing.T) {
	h, _ := newTestHandler(t)

	dispatch(h, `{"action":"track_detailed_question_response","uuid":"u1","questionId":"q1","isCorrect":true,"responseTime":500}`)
	resp := dispatch(h, `{"action":"track_detailed_question_response","uuid":"u1","questionId":"q1","isCorrect":true,"responseTime":null}`)

	tracked := resp.(*protocol.DetailedResponseTracked)
	if tracked.TotalAttempts != 2 {
		t.Fatalf("totalAttempts = %d, want 2", tracked.TotalAttempts)
	}
	// An untimed attempt carries the previous average forward unchanged.
	if tracked.AvgResponseTime == nil || *tracked.AvgResponseTime != 500 {
		t.Errorf("avgResponseTime = %v, want 500", tracked.AvgResponseTime)
	}
}

func TestTrackDetailedResponseNumericQuestionID(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := dispatch(h, `{"action":"track_detailed_question_response","uuid":"u1","questionId":42,"isCorrect":true}`)
	tracked := resp.(*protocol.DetailedResponseTracked)
	if tracked.QuestionID != "42" {
		t.Fatalf("questionId = %q, want 42", tracked.QuestionID)
	}

	resp = dispatch(h, `{"action":"get_question_analytics","questionId":42}`)
	result := resp.(*protocol.QuestionAnalyticsResult)
	if result.Stats == nil || result.Stats.TotalAttempts != 1 {
		t.Fatalf("numeric-id lookup failed: %+v", result.Stats)
	}
}

func TestGetQuestionAnalyticsAbsent(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := dispatch(h, `{"action":"get_question_analytics","questionId":"never-seen"}`)
	result := resp.(*protocol.QuestionAnalyticsResult)
	if result.Stats != nil {
		t.Fatalf("stats = %+v, want null", result.Stats)
	}
}

func TestGetQuestionAnalytics(t *testing.T) {
	h, _ := newTestHandler(t)

	dispatch(h, `{"action":"track_detailed_question_response","uuid":"u1","questionId":"q9","isCorrect":true,"responseTime":900,"difficulty":"C1","questionType":"fill_blank"}`)
	dispatch(h, `{"action":"track_detailed_question_response","uuid":"u2","questionId":"q9","isCorrect":false,"responseTime":1100}`)

	resp := dispatch(h, `{"action":"get_question_analytics","questionId":"q9"}`)
	stats := resp.(*protocol.QuestionAnalyticsResult).Stats
	if stats == nil {
		t.Fatal("stats missing")
	}
	if stats.TotalAttempts != 2 || stats.CorrectAttempts != 1 || stats.SuccessRate != 50 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.AvgResponseTime == nil || *stats.AvgResponseTime != 1000 {
		t.Errorf("avgResponseTime = %v, want 1000", stats.AvgResponseTime)
	}
	if stats.Difficulty != "C1" || stats.QuestionType != "fill_blank" {
		t.Errorf("metadata = %q/%q", stats.Difficulty, stats.QuestionType)
	}
}

func TestGetUserQuestionPerformance(t *testing.T) {
	h, _ := newTestHandler(t)

	dispatch(h, `{"action":"track_detailed_question_response","uuid":"u1","questionId":"q1","isCorrect":true}`)
	dispatch(h, `{"action":"track_detailed_question_response","uuid":"u1","questionId":"q2","isCorrect":false}`)
	dispatch(h, `{"action":"track_detailed_question_response","uuid":"u1","questionId":"q2","isCorrect":true}`)
	dispatch(h, `{"action":"track_detailed_question_response","uuid":"u2","questionId":"q1","isCorrect":true}`)

	resp := dispatch(h, `{"action":"get_user_question_performance","uuid":"u1"}`)
	result := resp.(*protocol.UserQuestionPerformanceResult)

	if len(result.QuestionPerformances) != 2 {
		t.Fatalf("got %d performances, want 2", len(result.QuestionPerformances))
	}

	byID := map[protocol.ID]protocol.QuestionPerformance{}
	for _, p := range result.QuestionPerformances {
		byID[p.QuestionID] = p
	}
	if q1 := byID["q1"]; q1.Attempts != 1 || q1.Correct != 1 || q1.SuccessRate != 100 {
		t.Errorf("q1 = %+v", q1)
	}
	if q2 := byID["q2"]; q2.Attempts != 2 || q2.Correct != 1 || q2.SuccessRate != 50 {
		t.Errorf("q2 = %+v", q2)
	}
}

func TestGetUserQuestionPerformanceEmpty(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := dispatch(h, `{"action":"get_user_question_performance","uuid":"nobody"}`)
	result := resp.(*protocol.UserQuestionPerformanceResult)
	if result.QuestionPerformances == nil {
		t.Fatal("performances must be an empty list, not null")
	}
	if len(result.QuestionPerformances) != 0 {
		t.Fatalf("got %d performances, want 0", len(result.QuestionPerformances))
	}
}

// =============================================================================
// Vocabulary misses
// =============================================================================

func TestTrackVocabMiss(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := dispatch(h, `{"action":"track_vocab_miss","uuid":"u1","words":["Haus","Baum","haus"]}`)
	tracked := resp.(*protocol.TrackVocabMissResult)
	if !tracked.Success || tracked.Tracked != 3 {
		t.Fatalf("tracked = %+v", tracked)
	}

	resp = dispatch(h, `{"action":"get_vocab_miss_stats","uuid":"u1"}`)
	stats := resp.(*protocol.VocabMissStats)
	// "Haus" and "haus" normalize to the same counter.
	if stats.Stats["haus"] != 2 {
		t.Errorf("haus = %d, want 2", stats.Stats["haus"])
	}
	if stats.Stats["baum"] != 1 {
		t.Errorf("baum = %d, want 1", stats.Stats["baum"])
	}
}

func TestTrackVocabMissRejectsEmptyWords(t *testing.T) {
	h, _ := newTestHandler(t)
	wantError(t, dispatch(h, `{"action":"track_vocab_miss","uuid":"u1","words":[]}`), "")
}

func TestClearVocabMiss(t *testing.T) {
	h, mr := newTestHandler(t)

	dispatch(h, `{"action":"track_vocab_miss","uuid":"u1","words":["eins","zwei"]}`)
	dispatch(h, `{"action":"track_vocab_miss","uuid":"u2","words":["drei"]}`)

	resp := dispatch(h, `{"action":"clear_vocab_miss","uuid":"u1"}`)
	if got := resp.(*protocol.ClearVocabMissResult).Deleted; got != 2 {
		t.Fatalf("deleted = %d, want 2", got)
	}

	if !mr.Exists("vocab_miss:u2:drei") {
		t.Error("another user's counters were cleared")
	}
}

// =============================================================================
// Degraded store
// =============================================================================

func TestDegradedStoreWrites(t *testing.T) {
	h, mr := newTestHandler(t)
	mr.Close()

	resp := dispatch(h, `{"action":"store_cache","cacheKey":"k1","audioData":"D"}`)
	if resp.(*protocol.CacheStoreResult).Success {
		t.Error("store_cache reported success with the store down")
	}

	resp = dispatch(h, `{"action":"track_vocab_miss","uuid":"u1","words":["wort"]}`)
	tracked := resp.(*protocol.TrackVocabMissResult)
	if tracked.Success || tracked.Tracked != 0 {
		t.Errorf("track_vocab_miss = %+v, want failure", tracked)
	}
}

func TestNotReadyStoreReadsDegrade(t *testing.T) {
	st, _ := testutil.NewStore(t)
	h := New(st, retention.Default(), nil)
	st.SetReady(false)

	resp := dispatch(h, `{"action":"get_scoring_stats","uuid":"u1"}`)
	stats := resp.(*protocol.ScoringStatsResult)
	if len(stats.Stats) != 6 {
		t.Fatalf("expected zeroed 6-level stats, got %+v", stats.Stats)
	}

	resp = dispatch(h, `{"action":"get_question_analytics","questionId":"q1"}`)
	if resp.(*protocol.QuestionAnalyticsResult).Stats != nil {
		t.Error("question analytics should report null stats when not ready")
	}

	resp = dispatch(h, `{"action":"get_user_question_performance","uuid":"u1"}`)
	if got := resp.(*protocol.UserQuestionPerformanceResult).QuestionPerformances; len(got) != 0 {
		t.Errorf("expected empty performances, got %+v", got)
	}

	resp = dispatch(h, `{"action":"get_vocab_miss_stats","uuid":"u1"}`)
	if got := resp.(*protocol.VocabMissStats).Stats; len(got) != 0 {
		t.Errorf("expected empty vocab stats, got %+v", got)
	}
}

func TestValidationRejectsHostileIdentifiers(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := []string{
		`{"action":"get_scoring_stats","uuid":"a:b"}`,
		`{"action":"get_scoring_stats","uuid":"a*"}`,
		`{"action":"get_scoring_stats","uuid":""}`,
		`{"action":"check_cache","cacheKey":"has space"}`,
		`{"action":"get_question_analytics","questionId":"q:1"}`,
	}
	for _, msg := range cases {
		wantError(t, dispatch(h, msg), "")
	}
}
