// Package store provides the adapter over the TTL-capable key-value store.
//
// This package handles all persistence operations for lexcache: the audio
// cache blobs, scoring counters, response records, and aggregate statistic
// hashes. It uses Redis as the backing store via github.com/redis/go-redis/v9.
//
// The adapter tracks the readiness of the store connection. Every operation
// fails fast with errors.ErrStoreNotReady while the connection is down:
// there is no blocking wait and no retry loop. Callers degrade to cache-miss
// or no-op-write behavior instead of hanging the connection.
package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lexcache/lexcache/config"
	"github.com/lexcache/lexcache/internal/errors"
	"github.com/lexcache/lexcache/internal/logging"
)

var log = logging.Component("store")

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// Addr is the Redis address (host:port).
	Addr string

	// Password is the Redis password (empty for none).
	Password string

	// DB is the Redis logical database.
	DB int

	// OpTimeout is the per-operation timeout applied on top of the
	// caller's context.
	OpTimeout time.Duration

	// PingInterval is how often the readiness monitor pings the store.
	PingInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         config.DefaultRedisAddr,
		DB:           config.DefaultRedisDB,
		OpTimeout:    config.DefaultStoreOpTimeout,
		PingInterval: config.DefaultStorePingInterval,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store provides key-value operations against the backing store.
//
// Store is safe for concurrent use. It holds a single shared client used by
// all connections; there are no per-connection transactions or locks.
type Store struct {
	client *redis.Client
	config Config

	ready  atomic.Bool
	closed atomic.Bool

	monitorStop chan struct{}
	monitorDone chan struct{}
}

// New creates a new Store with the given configuration and verifies the
// connection with an initial ping. If the initial ping fails the store is
// still returned: it starts in not-ready state and the monitor will mark it
// ready once the backing store comes up.
func New(cfg Config) *Store {
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultRedisAddr
	}
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = config.DefaultStoreOpTimeout
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = config.DefaultStorePingInterval
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	s := &Store{
		client:      client,
		config:      cfg,
		monitorStop: make(chan struct{}),
		monitorDone: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OpTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("store not reachable at startup, starting degraded", "addr", cfg.Addr, "error", err)
	} else {
		s.ready.Store(true)
		log.Info("store connection established", "addr", cfg.Addr)
	}

	go s.monitorLoop()

	return s
}

// NewWithClient creates a Store around an existing Redis client.
// The readiness monitor is not started; the store is marked ready
// immediately. Used by tests.
func NewWithClient(client *redis.Client, cfg Config) *Store {
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = config.DefaultStoreOpTimeout
	}
	s := &Store{
		client:      client,
		config:      cfg,
		monitorStop: make(chan struct{}),
		monitorDone: make(chan struct{}),
	}
	close(s.monitorDone)
	s.ready.Store(true)
	return s
}

// Ready reports whether the backing store connection is established.
// Callers must check readiness before writes that will be acknowledged
// to the client as authoritative.
func (s *Store) Ready() bool {
	return s.ready.Load() && !s.closed.Load()
}

// SetReady overrides the readiness state. Used by tests to force the
// degraded path.
func (s *Store) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Close closes the store and stops the readiness monitor.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.monitorStop)
	<-s.monitorDone
	return s.client.Close()
}

// monitorLoop pings the store periodically and updates readiness.
// A state change in either direction is logged once.
func (s *Store) monitorLoop() {
	defer close(s.monitorDone)

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.OpTimeout)
			err := s.client.Ping(ctx).Err()
			cancel()

			was := s.ready.Load()
			now := err == nil
			if now != was {
				s.ready.Store(now)
				if now {
					log.Info("store connection restored", "addr", s.config.Addr)
				} else {
					log.Warn("store connection lost", "addr", s.config.Addr, "error", err)
				}
			}
		case <-s.monitorStop:
			return
		}
	}
}

// opContext derives the per-operation context, or fails if the store is
// not ready.
func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if s.closed.Load() {
		return nil, nil, errors.ErrStoreClosed
	}
	if !s.ready.Load() {
		return nil, nil, errors.ErrStoreNotReady
	}
	opCtx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	return opCtx, cancel, nil
}

// =============================================================================
// Scalar Operations
// =============================================================================

// Get returns the value at key. Returns ("", false, nil) when the key is
// absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return "", false, err
	}
	defer cancel()

	val, err := s.client.Get(opCtx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

// SetWithTTL stores value at key with the given TTL. A zero TTL stores the
// key without expiry.
func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := s.client.Set(opCtx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Incr atomically increments the integer at key and returns the new value.
// Absent keys start from zero.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := s.client.Incr(opCtx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return n, nil
}

// Delete removes the given keys and returns how many existed.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := s.client.Del(opCtx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return n, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	n, err := s.client.Exists(opCtx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Scan returns all keys matching the given pattern. The data volumes here
// are small (one key per cached rendering or per tracked question), so the
// blocking KEYS enumeration the original protocol exposes is acceptable.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	keys, err := s.client.Keys(opCtx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}

// Expire sets the TTL on an existing key. Returns false if the key does
// not exist.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	ok, err := s.client.Expire(opCtx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("expire %s: %w", key, err)
	}
	return ok, nil
}

// =============================================================================
// Hash Operations
// =============================================================================

// Field is one hash field with its value. Fields are ordered so that the
// safe-write guard can verify the first written field deterministically.
type Field struct {
	Name  string
	Value string
}

// HGetAll returns all fields of the hash at key. An absent key yields an
// empty map and no error.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	fields, err := s.client.HGetAll(opCtx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return fields, nil
}

// HSet writes the given fields to the hash at key.
func (s *Store) HSet(ctx context.Context, key string, fields []Field) error {
	if len(fields) == 0 {
		return nil
	}

	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	args := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Name, f.Value)
	}

	if err := s.client.HSet(opCtx, key, args...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// HFieldExists reports whether the hash at key has the given field.
func (s *Store) HFieldExists(ctx context.Context, key, field string) (bool, error) {
	opCtx, cancel, err := s.opContext(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	ok, err := s.client.HExists(opCtx, key, field).Result()
	if err != nil {
		return false, fmt.Errorf("hexists %s %s: %w", key, field, err)
	}
	return ok, nil
}
