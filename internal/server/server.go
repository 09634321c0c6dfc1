// Package server runs the loopback TCP front end.
//
// Each connection gets a read loop that dispatches one request at a time
// and a writer goroutine that drains the session's send buffer. Responses
// for a connection are delivered in request order.
package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lexcache/lexcache/config"
	"github.com/lexcache/lexcache/internal/handler"
	"github.com/lexcache/lexcache/internal/logging"
	"github.com/lexcache/lexcache/internal/protocol"
)

var log = logging.Component("server")

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Handler dispatches decoded requests (required).
	Handler *handler.Handler

	// Listen is the address to listen on (e.g., "127.0.0.1:8629").
	Listen string

	// MaxMessageSize caps a single inbound message in bytes.
	MaxMessageSize int

	// Session settings.
	SendBufferSize int
	SendTimeoutMs  int

	// DrainTimeout bounds how long Shutdown waits for in-flight
	// connections before closing them.
	DrainTimeout time.Duration
}

// =============================================================================
// Server
// =============================================================================

// Server accepts client connections and feeds them to the handler.
type Server struct {
	cfg      *Config
	handler  *handler.Handler
	sessions *handler.SessionManager
	listener net.Listener

	conns *errgroup.Group

	shutdown chan struct{}
}

// New creates a new server.
func New(cfg *Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = config.DefaultMaxMessageSize
	}
	if cfg.SendBufferSize == 0 {
		cfg.SendBufferSize = config.DefaultSessionSendBufferSize
	}
	if cfg.SendTimeoutMs == 0 {
		cfg.SendTimeoutMs = config.DefaultSessionSendTimeoutMs
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = config.DefaultDrainTimeout
	}

	sessions := handler.NewSessionManager(&handler.SessionManagerConfig{
		CleanupInterval: time.Duration(config.DefaultSessionCleanupIntervalSec) * time.Second,
	})

	return &Server{
		cfg:      cfg,
		handler:  cfg.Handler,
		sessions: sessions,
		conns:    &errgroup.Group{},
		shutdown: make(chan struct{}),
	}
}

// Addr returns the listener address, or "" before Run has bound it.
// Useful when listening on an ephemeral port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Sessions exposes the session manager for introspection.
func (s *Server) Sessions() *handler.SessionManager {
	return s.sessions
}

// Run binds the listener and blocks accepting connections until Shutdown.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln

	if !isLoopback(s.cfg.Listen) {
		log.Warn("listening on a non-loopback address; the protocol has no authentication",
			"address", s.cfg.Listen)
	}
	log.Info("listening", "address", ln.Addr().String())

	s.sessions.Start()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				log.Error("accept error", "error", err)
				continue
			}
		}
		s.conns.Go(func() error {
			s.handleConn(conn)
			return nil
		})
	}
}

// Shutdown stops the server gracefully: no new connections, in-flight
// requests get DrainTimeout to finish, then everything is closed.
func (s *Server) Shutdown() {
	log.Info("shutting down")
	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
	}

	drained := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.cfg.DrainTimeout):
		log.Warn("drain timeout, closing remaining sessions",
			"active", s.sessions.CountActive())
	}

	s.sessions.Stop()
	log.Info("shutdown complete")
}

// =============================================================================
// Connection Handling
// =============================================================================

// handleConn drives one connection: a writer goroutine drains the send
// buffer while this goroutine reads, dispatches, and queues responses
// strictly in order.
func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log.Debug("connection from", "remote", remote)

	w := protocol.NewConnSize(conn, s.cfg.MaxMessageSize)
	session := s.sessions.CreateSession(conn, w)

	ctx := logging.ContextWithSessionID(context.Background(), session.ID)

	// Writer goroutine. Close() is idempotent, so it is safe to call
	// from both sides. On session close it flushes whatever was queued
	// before the close, then exits.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch := session.SendChan()
		for {
			select {
			case data := <-ch:
				if err := w.WriteRaw(data); err != nil {
					log.Debug("write failed, closing session",
						"session_id", session.ID, "error", err)
					session.Close()
					return
				}
			case <-session.Done():
				for {
					select {
					case data := <-ch:
						if err := w.WriteRaw(data); err != nil {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	for {
		raw, err := w.Read()
		if err != nil {
			break
		}
		if len(raw) == 0 {
			// Bare newline keepalive, ignore.
			continue
		}

		resp := s.handler.Handle(ctx, raw)

		data, err := protocol.Marshal(resp)
		if err != nil {
			log.Error("response encode failed", "session_id", session.ID, "error", err)
			data, _ = protocol.Marshal(protocol.NewError("Internal error"))
		}
		if !session.Send(data) {
			break
		}

		select {
		case <-s.shutdown:
			// Finish the in-flight response, then stop reading.
			session.Close()
		default:
		}
		if session.IsClosed() {
			break
		}
	}

	session.Close()
	<-done
	log.Debug("session disconnected", "session_id", session.ID)
}

// isLoopback reports whether the listen address binds a loopback interface.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" || host == "" {
		return host == "localhost"
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
