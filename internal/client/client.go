// Package client provides a client for connecting to the lexcache server.
//
// The protocol carries no request IDs, so requests on one connection are
// strictly sequential: Do holds the connection for the full round trip.
// Callers needing parallelism open multiple clients.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lexcache/lexcache/config"
	"github.com/lexcache/lexcache/internal/protocol"
	lexSync "github.com/lexcache/lexcache/internal/sync"
)

// =============================================================================
// State Machine
// =============================================================================

// State represents the connection state of a client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

type stateTransition struct {
	from State
	to   State
}

// validTransitions defines all allowed state transitions.
var validTransitions = map[stateTransition]bool{
	{StateDisconnected, StateConnecting}: true,
	{StateDisconnected, StateClosed}:     true,

	{StateConnecting, StateConnected}:    true,
	{StateConnecting, StateDisconnected}: true,

	{StateConnected, StateDisconnected}: true,
	{StateConnected, StateClosing}:      true,

	{StateClosing, StateClosed}: true,
}

// =============================================================================
// Errors
// =============================================================================

var (
	ErrClientClosed      = errors.New("client is closed")
	ErrClientClosing     = errors.New("client is closing")
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrTimeout           = errors.New("request timeout")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ServerError is a structured error response from the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// =============================================================================
// Client
// =============================================================================

// Client connects to a lexcache server.
type Client struct {
	addr string

	requestTimeout time.Duration

	// Connection - protected by mu; mu is also held for the full
	// duration of a request so round trips never interleave.
	mu   sync.Mutex
	conn net.Conn
	wire *protocol.Conn

	state atomic.Int32

	closeOnce lexSync.ResettableOnce
}

// Config holds client configuration.
type Config struct {
	Addr           string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           config.DefaultListenAddress,
		ConnectTimeout: 30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// New creates a new client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultListenAddress
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	return &Client{
		addr:           cfg.Addr,
		requestTimeout: cfg.RequestTimeout,
	}
}

// =============================================================================
// State Transitions
// =============================================================================

func (c *Client) getState() State {
	return State(c.state.Load())
}

func (c *Client) transitionTo(newState State) error {
	for {
		oldState := c.getState()
		if !validTransitions[stateTransition{from: oldState, to: newState}] {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldState, newState)
		}
		if c.state.CompareAndSwap(int32(oldState), int32(newState)) {
			return nil
		}
	}
}

func (c *Client) transitionFrom(from, to State) bool {
	if !validTransitions[stateTransition{from: from, to: to}] {
		return false
	}
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// =============================================================================
// Connection Management
// =============================================================================

// Connect connects to the server.
func (c *Client) Connect() error {
	return c.ConnectWithContext(context.Background())
}

// ConnectWithContext connects with a context for timeout/cancellation.
func (c *Client) ConnectWithContext(ctx context.Context) error {
	switch c.getState() {
	case StateClosed:
		return ErrClientClosed
	case StateClosing:
		return ErrClientClosing
	case StateConnected:
		return ErrAlreadyConnected
	case StateConnecting:
		return fmt.Errorf("connection already in progress")
	}

	if !c.transitionFrom(StateDisconnected, StateConnecting) {
		return fmt.Errorf("cannot connect: current state is %s", c.getState())
	}

	success := false
	defer func() {
		if !success {
			c.transitionFrom(StateConnecting, StateDisconnected)
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.conn = conn
	c.wire = protocol.NewConn(conn)

	if err := c.transitionTo(StateConnected); err != nil {
		conn.Close()
		c.conn = nil
		c.wire = nil
		return err
	}

	success = true
	return nil
}

// Close closes the client connection permanently.
func (c *Client) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		currentState := c.getState()
		if currentState == StateClosed || currentState == StateClosing {
			return
		}

		if currentState == StateConnected {
			c.transitionFrom(StateConnected, StateClosing)
		} else if currentState == StateDisconnected {
			c.transitionFrom(StateDisconnected, StateClosed)
			return
		}

		c.mu.Lock()
		if c.conn != nil {
			closeErr = c.conn.Close()
			c.conn = nil
			c.wire = nil
		}
		c.mu.Unlock()

		c.transitionFrom(StateClosing, StateClosed)
	})

	return closeErr
}

// Reconnect attempts to reconnect to the server.
func (c *Client) Reconnect() error {
	return c.ReconnectWithContext(context.Background())
}

// ReconnectWithContext attempts to reconnect with context.
func (c *Client) ReconnectWithContext(ctx context.Context) error {
	if c.getState() == StateClosed {
		return ErrClientClosed
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.wire = nil
	}
	c.mu.Unlock()

	c.state.Store(int32(StateDisconnected))
	c.closeOnce.Reset()

	return c.ConnectWithContext(ctx)
}

// =============================================================================
// State Queries
// =============================================================================

// IsConnected returns true if connected.
func (c *Client) IsConnected() bool {
	return c.getState() == StateConnected
}

// IsClosed returns true if permanently closed.
func (c *Client) IsClosed() bool {
	return c.getState() == StateClosed
}

// State returns the current state as a string.
func (c *Client) State() string {
	return c.getState().String()
}

// =============================================================================
// Request/Response
// =============================================================================

// do sends one request and decodes the response into out. An error-typed
// response is returned as *ServerError.
func (c *Client) do(ctx context.Context, req interface{}, out interface{}) error {
	if c.getState() != StateConnected {
		return ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wire == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.requestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if err := c.wire.Write(req); err != nil {
		c.dropConnLocked()
		return fmt.Errorf("write request: %w", err)
	}

	raw, err := c.wire.Read()
	if err != nil {
		c.dropConnLocked()
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("read response: %w", err)
	}

	var env struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := protocol.Unmarshal(raw, &env); err != nil {
		return err
	}
	if env.Type == protocol.TypeError {
		return &ServerError{Message: env.Message}
	}

	if out == nil {
		return nil
	}
	return protocol.Unmarshal(raw, out)
}

// dropConnLocked tears the connection down after an I/O failure.
// Callers must hold mu.
func (c *Client) dropConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.wire = nil
	}
	c.transitionFrom(StateConnected, StateDisconnected)
}

// Do sends a raw request map and returns the raw response. Useful for
// tooling that speaks the protocol generically.
func (c *Client) Do(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// Typed Operations
// =============================================================================

type actionEnvelope struct {
	Action string `json:"action"`
}

// Ping checks server liveness.
func (c *Client) Ping(ctx context.Context) (*protocol.Pong, error) {
	var out protocol.Pong
	if err := c.do(ctx, actionEnvelope{Action: "ping"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type cacheRequest struct {
	Action   string `json:"action"`
	CacheKey string `json:"cacheKey,omitempty"`
	Text     string `json:"text,omitempty"`
	VoiceID  string `json:"voiceId,omitempty"`
}

// CheckCache looks up cached audio by explicit key.
func (c *Client) CheckCache(ctx context.Context, cacheKey string) (*protocol.CacheCheckResult, error) {
	var out protocol.CacheCheckResult
	err := c.do(ctx, cacheRequest{Action: "check_cache", CacheKey: cacheKey}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckCacheByText looks up cached audio by its (text, voiceId) pair.
func (c *Client) CheckCacheByText(ctx context.Context, text, voiceID string) (*protocol.CacheCheckResult, error) {
	var out protocol.CacheCheckResult
	err := c.do(ctx, cacheRequest{Action: "check_cache", Text: text, VoiceID: voiceID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type storeCacheRequest struct {
	cacheRequest
	AudioData string `json:"audioData"`
}

// StoreCache stores audio under an explicit key.
func (c *Client) StoreCache(ctx context.Context, cacheKey, audioData string) (*protocol.CacheStoreResult, error) {
	var out protocol.CacheStoreResult
	req := storeCacheRequest{
		cacheRequest: cacheRequest{Action: "store_cache", CacheKey: cacheKey},
		AudioData:    audioData,
	}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EvictCache removes one cached audio entry.
func (c *Client) EvictCache(ctx context.Context, cacheKey string) (*protocol.EvictCacheResult, error) {
	var out protocol.EvictCacheResult
	err := c.do(ctx, cacheRequest{Action: "evict_cache", CacheKey: cacheKey}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearCache removes all cached audio entries.
func (c *Client) ClearCache(ctx context.Context) (*protocol.ClearCacheResult, error) {
	var out protocol.ClearCacheResult
	if err := c.do(ctx, actionEnvelope{Action: "clear_cache"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStats returns cache occupancy statistics.
func (c *Client) GetStats(ctx context.Context) (*protocol.StatsResult, error) {
	var out protocol.StatsResult
	if err := c.do(ctx, actionEnvelope{Action: "get_stats"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type trackQuestionResultRequest struct {
	Action     string `json:"action"`
	UUID       string `json:"uuid"`
	Difficulty string `json:"difficulty"`
	IsCorrect  bool   `json:"isCorrect"`
}

// TrackQuestionResult records one coarse per-level answer.
func (c *Client) TrackQuestionResult(ctx context.Context, uuid, difficulty string, correct bool) (*protocol.QuestionResultTracked, error) {
	var out protocol.QuestionResultTracked
	req := trackQuestionResultRequest{
		Action:     "track_question_result",
		UUID:       uuid,
		Difficulty: difficulty,
		IsCorrect:  correct,
	}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type userRequest struct {
	Action string `json:"action"`
	UUID   string `json:"uuid"`
}

// GetScoringStats returns a user's per-level counters.
func (c *Client) GetScoringStats(ctx context.Context, uuid string) (*protocol.ScoringStatsResult, error) {
	var out protocol.ScoringStatsResult
	err := c.do(ctx, userRequest{Action: "get_scoring_stats", UUID: uuid}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearScoringStats deletes a user's per-level counters.
func (c *Client) ClearScoringStats(ctx context.Context, uuid string) (*protocol.ScoringStatsCleared, error) {
	var out protocol.ScoringStatsCleared
	err := c.do(ctx, userRequest{Action: "clear_scoring_stats", UUID: uuid}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DetailedResponse describes one answer for TrackDetailedResponse.
type DetailedResponse struct {
	UUID           string
	QuestionID     string
	Correct        bool
	ResponseTimeMs *float64
	Difficulty     string
	QuestionType   string
}

type trackDetailedRequest struct {
	Action       string   `json:"action"`
	UUID         string   `json:"uuid"`
	QuestionID   string   `json:"questionId"`
	IsCorrect    bool     `json:"isCorrect"`
	ResponseTime *float64 `json:"responseTime,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	QuestionType string   `json:"questionType,omitempty"`
}

// TrackDetailedResponse records one detailed answer observation.
func (c *Client) TrackDetailedResponse(ctx context.Context, r DetailedResponse) (*protocol.DetailedResponseTracked, error) {
	var out protocol.DetailedResponseTracked
	req := trackDetailedRequest{
		Action:       "track_detailed_question_response",
		UUID:         r.UUID,
		QuestionID:   r.QuestionID,
		IsCorrect:    r.Correct,
		ResponseTime: r.ResponseTimeMs,
		Difficulty:   r.Difficulty,
		QuestionType: r.QuestionType,
	}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type questionRequest struct {
	Action     string `json:"action"`
	QuestionID string `json:"questionId"`
}

// GetQuestionAnalytics returns the global aggregate for one question.
func (c *Client) GetQuestionAnalytics(ctx context.Context, questionID string) (*protocol.QuestionAnalyticsResult, error) {
	var out protocol.QuestionAnalyticsResult
	err := c.do(ctx, questionRequest{Action: "get_question_analytics", QuestionID: questionID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserQuestionPerformance lists a user's per-question aggregates.
func (c *Client) GetUserQuestionPerformance(ctx context.Context, uuid string) (*protocol.UserQuestionPerformanceResult, error) {
	var out protocol.UserQuestionPerformanceResult
	err := c.do(ctx, userRequest{Action: "get_user_question_performance", UUID: uuid}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type trackVocabMissRequest struct {
	Action string   `json:"action"`
	UUID   string   `json:"uuid"`
	Words  []string `json:"words"`
}

// TrackVocabMiss increments miss counters for the given words.
func (c *Client) TrackVocabMiss(ctx context.Context, uuid string, words []string) (*protocol.TrackVocabMissResult, error) {
	var out protocol.TrackVocabMissResult
	req := trackVocabMissRequest{Action: "track_vocab_miss", UUID: uuid, Words: words}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetVocabMissStats returns a user's miss counters by word.
func (c *Client) GetVocabMissStats(ctx context.Context, uuid string) (*protocol.VocabMissStats, error) {
	var out protocol.VocabMissStats
	err := c.do(ctx, userRequest{Action: "get_vocab_miss_stats", UUID: uuid}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearVocabMiss deletes a user's miss counters.
func (c *Client) ClearVocabMiss(ctx context.Context, uuid string) (*protocol.ClearVocabMissResult, error) {
	var out protocol.ClearVocabMissResult
	err := c.do(ctx, userRequest{Action: "clear_vocab_miss", UUID: uuid}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
