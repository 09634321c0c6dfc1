package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lexcache/lexcache/internal/handler"
	"github.com/lexcache/lexcache/internal/retention"
	"github.com/lexcache/lexcache/internal/server"
	"github.com/lexcache/lexcache/internal/testutil"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()

	st, _ := testutil.NewStore(t)
	h := handler.New(st, retention.Default(), nil)

	srv := server.New(&server.Config{
		Handler:      h,
		Listen:       "127.0.0.1:0",
		DrainTimeout: time.Second,
	})

	go func() {
		if err := srv.Run(); err != nil {
			t.Errorf("server run: %v", err)
		}
	}()
	t.Cleanup(srv.Shutdown)

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv
}

func connect(t *testing.T, srv *server.Server) *Client {
	t.Helper()
	c := New(&Config{Addr: srv.Addr(), RequestTimeout: 2 * time.Second})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientPing(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)

	pong, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if pong.Timestamp == 0 {
		t.Error("pong timestamp not set")
	}
}

func TestClientCacheRoundTrip(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)
	ctx := context.Background()

	stored, err := c.StoreCache(ctx, "deadbeef", "AUDIO")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !stored.Success {
		t.Fatal("store reported failure")
	}

	check, err := c.CheckCache(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !check.Exists || check.AudioData == nil || *check.AudioData != "AUDIO" {
		t.Fatalf("check = %+v", check)
	}
}

func TestClientServerError(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)

	_, err := c.TrackQuestionResult(context.Background(), "u1", "Z9", true)
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
}

func TestClientScoringFlow(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		tracked, err := c.TrackQuestionResult(ctx, "u1", "B2", i%2 == 0)
		if err != nil {
			t.Fatalf("track %d: %v", i, err)
		}
		if tracked.TotalAttempts != int64(i+1) {
			t.Fatalf("track %d: totalAttempts = %d", i, tracked.TotalAttempts)
		}
	}

	stats, err := c.GetScoringStats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if b2 := stats.Stats["B2"]; b2.Attempts != 4 || b2.Correct != 2 || b2.SuccessRate != 50 {
		t.Fatalf("B2 = %+v", b2)
	}

	cleared, err := c.ClearScoringStats(ctx, "u1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared.DeletedCount == 0 {
		t.Error("expected counters to be deleted")
	}
}

func TestClientDetailedFlow(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)
	ctx := context.Background()

	ms := 750.0
	tracked, err := c.TrackDetailedResponse(ctx, DetailedResponse{
		UUID:           "u1",
		QuestionID:     "q1",
		Correct:        true,
		ResponseTimeMs: &ms,
		Difficulty:     "B1",
	})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !tracked.Recorded || tracked.TotalAttempts != 1 {
		t.Fatalf("tracked = %+v", tracked)
	}

	result, err := c.GetQuestionAnalytics(ctx, "q1")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if result.Stats == nil || result.Stats.AvgResponseTime == nil || *result.Stats.AvgResponseTime != 750 {
		t.Fatalf("stats = %+v", result.Stats)
	}

	perf, err := c.GetUserQuestionPerformance(ctx, "u1")
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if len(perf.QuestionPerformances) != 1 {
		t.Fatalf("performances = %+v", perf.QuestionPerformances)
	}
}

func TestClientVocabFlow(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)
	ctx := context.Background()

	if _, err := c.TrackVocabMiss(ctx, "u1", []string{"Wort", "wort", "Satz"}); err != nil {
		t.Fatalf("track: %v", err)
	}

	stats, err := c.GetVocabMissStats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Stats["wort"] != 2 || stats.Stats["satz"] != 1 {
		t.Fatalf("stats = %+v", stats.Stats)
	}

	cleared, err := c.ClearVocabMiss(ctx, "u1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", cleared.Deleted)
	}
}

func TestClientStateMachine(t *testing.T) {
	srv := startServer(t)

	c := New(&Config{Addr: srv.Addr()})
	if c.State() != "disconnected" {
		t.Fatalf("initial state = %s", c.State())
	}
	if _, err := c.Ping(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("ping before connect: %v", err)
	}

	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("not connected after Connect")
	}
	if err := c.Connect(); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("double connect: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !c.IsClosed() {
		t.Fatal("not closed after Close")
	}
	if err := c.Connect(); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("connect after close: %v", err)
	}
	if err := c.Reconnect(); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("reconnect after close: %v", err)
	}
}

func TestClientReconnect(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)

	if err := c.Reconnect(); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if _, err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping after reconnect: %v", err)
	}
}
