package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lexcache/lexcache/config"
	"github.com/lexcache/lexcache/internal/logging"
	"github.com/lexcache/lexcache/internal/protocol"
)

var sessionLog = logging.Component("session")

// =============================================================================
// Session
// =============================================================================

// Session represents one client connection.
//
// A session lives exactly as long as its connection. There is no session
// resumption: clients reconnect and start fresh, which is fine for a
// request/response protocol with no server-side subscription state.
//
// Session is safe for concurrent use.
type Session struct {
	// Immutable fields (no lock needed)
	ID        string
	CreatedAt time.Time

	// Connection - protected by connMu
	connMu sync.RWMutex
	Conn   net.Conn
	Wire   *protocol.Conn

	// Send channel. Never closed: a concurrent Send must not be able to
	// hit a closed channel. Closing is signalled through done instead.
	sendCh chan []byte
	done   chan struct{}

	// State management
	closed    atomic.Bool
	closeOnce sync.Once

	onClose func(sessionID string)

	sendBufferSize int
	sendTimeoutMs  int
}

// SessionConfig holds session configuration options.
type SessionConfig struct {
	SendBufferSize int
	SendTimeoutMs  int
}

// NewSession creates a new session with default configuration.
func NewSession(id string, conn net.Conn, w *protocol.Conn) *Session {
	return NewSessionWithConfig(id, conn, w, nil)
}

// NewSessionWithConfig creates a new session with custom configuration.
func NewSessionWithConfig(id string, conn net.Conn, w *protocol.Conn, cfg *SessionConfig) *Session {
	bufferSize := config.DefaultSessionSendBufferSize
	timeoutMs := config.DefaultSessionSendTimeoutMs

	if cfg != nil {
		if cfg.SendBufferSize > 0 {
			bufferSize = cfg.SendBufferSize
		}
		if cfg.SendTimeoutMs > 0 {
			timeoutMs = cfg.SendTimeoutMs
		}
	}

	return &Session{
		ID:             id,
		CreatedAt:      time.Now(),
		Conn:           conn,
		Wire:           w,
		sendCh:         make(chan []byte, bufferSize),
		done:           make(chan struct{}),
		sendBufferSize: bufferSize,
		sendTimeoutMs:  timeoutMs,
	}
}

// SetOnClose sets the close callback.
func (s *Session) SetOnClose(fn func(sessionID string)) {
	s.connMu.Lock()
	s.onClose = fn
	s.connMu.Unlock()
}

// =============================================================================
// Send Operations
// =============================================================================

// Send queues an encoded response for the writer goroutine.
// Returns false if the session is closed or the send buffer stays full
// past the configured timeout.
func (s *Session) Send(data []byte) bool {
	if s.closed.Load() {
		return false
	}

	// Try non-blocking send first
	select {
	case s.sendCh <- data:
		return true
	case <-s.done:
		return false
	default:
		// Buffer full - try with timeout
		timeout := time.Duration(s.sendTimeoutMs) * time.Millisecond
		select {
		case s.sendCh <- data:
			return true
		case <-s.done:
			return false
		case <-time.After(timeout):
			sessionLog.Warn("send buffer full, dropping response",
				"session_id", s.ID,
				"timeout_ms", s.sendTimeoutMs)
			return false
		}
	}
}

// SendChan returns the send channel for the writer goroutine.
func (s *Session) SendChan() <-chan []byte {
	return s.sendCh
}

// Done is closed when the session closes. The writer goroutine selects on
// it alongside SendChan.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// =============================================================================
// Close
// =============================================================================

// Close closes the session permanently.
// This is idempotent - calling it multiple times has no additional effect.
func (s *Session) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.connMu.Lock()
		onClose := s.onClose
		s.connMu.Unlock()

		// Signal the writer goroutine. The send channel itself stays
		// open so a racing Send lands in the buffer instead of
		// panicking; the writer drains what was already queued.
		close(s.done)

		// Close connection
		s.connMu.Lock()
		if s.Conn != nil {
			closeErr = s.Conn.Close()
			s.Conn = nil
			s.Wire = nil
		}
		s.connMu.Unlock()

		if onClose != nil {
			onClose(s.ID)
		}

		sessionLog.Debug("session closed", "session_id", s.ID)
	})

	return closeErr
}

// IsClosed returns true if the session is closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// =============================================================================
// Session Manager
// =============================================================================

// SessionManagerConfig holds session manager configuration.
type SessionManagerConfig struct {
	CleanupInterval time.Duration
	OnSessionClosed func(session *Session)
}

// SessionManager tracks live sessions and reaps closed ones.
//
// SessionManager is safe for concurrent use.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cleanupInterval time.Duration
	onSessionClosed func(session *Session)

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupWg     sync.WaitGroup
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg *SessionManagerConfig) *SessionManager {
	if cfg == nil {
		cfg = &SessionManagerConfig{}
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Duration(config.DefaultSessionCleanupIntervalSec) * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SessionManager{
		sessions:        make(map[string]*Session),
		cleanupInterval: cfg.CleanupInterval,
		onSessionClosed: cfg.OnSessionClosed,
		cleanupCtx:      ctx,
		cleanupCancel:   cancel,
	}
}

// Start starts the background cleanup goroutine.
func (sm *SessionManager) Start() {
	sm.cleanupWg.Add(1)
	go sm.cleanupLoop()
	sessionLog.Info("session manager started")
}

// Stop stops the session manager and closes all remaining sessions.
func (sm *SessionManager) Stop() {
	sm.cleanupCancel()
	sm.cleanupWg.Wait()

	sm.mu.Lock()
	for _, session := range sm.sessions {
		session.Close()
	}
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	sessionLog.Info("session manager stopped")
}

func (sm *SessionManager) cleanupLoop() {
	defer sm.cleanupWg.Done()

	ticker := time.NewTicker(sm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.cleanupClosedSessions()
		case <-sm.cleanupCtx.Done():
			return
		}
	}
}

// cleanupClosedSessions removes closed sessions from the map.
func (sm *SessionManager) cleanupClosedSessions() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var toRemove []string
	for id, session := range sm.sessions {
		if session.IsClosed() {
			toRemove = append(toRemove, id)
		}
	}

	for _, id := range toRemove {
		delete(sm.sessions, id)
	}

	if len(toRemove) > 0 {
		sessionLog.Debug("cleaned up closed sessions", "count", len(toRemove))
	}
}

// =============================================================================
// Session Lifecycle
// =============================================================================

// CreateSession registers a new session for a connection.
func (sm *SessionManager) CreateSession(conn net.Conn, w *protocol.Conn) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	id := generateSessionID()
	session := NewSession(id, conn, w)
	session.SetOnClose(func(sid string) {
		if sm.onSessionClosed != nil {
			sm.onSessionClosed(session)
		}
	})

	sm.sessions[id] = session

	sessionLog.Info("session created", "session_id", id, "remote", conn.RemoteAddr())
	return session
}

// GetSession returns a session by ID.
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// RemoveSession closes and removes a session immediately.
func (sm *SessionManager) RemoveSession(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, ok := sm.sessions[id]
	if !ok {
		return
	}

	session.Close()
	delete(sm.sessions, id)

	sessionLog.Info("session removed", "session_id", id)
}

// Count returns the total number of tracked sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CountActive returns the number of active (not closed) sessions.
func (sm *SessionManager) CountActive() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	count := 0
	for _, s := range sm.sessions {
		if !s.IsClosed() {
			count++
		}
	}
	return count
}

// =============================================================================
// Helpers
// =============================================================================

// generateSessionID generates a cryptographically secure session ID.
// Uses 128 bits of randomness (16 bytes) encoded as hex (32 characters).
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// This should never happen with crypto/rand
		panic("failed to generate session ID: " + err.Error())
	}
	return hex.EncodeToString(b)
}
