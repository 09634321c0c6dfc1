// Safe-write guard: writes followed by an immediate local read-back.
//
// The backing store may be configured with asynchronous replication
// elsewhere; the only node this service trusts is the local one. A local
// write that does not read back identically must never be presented to the
// caller as a success, so both helpers return a plain bool and never
// propagate storage errors. There are no retries: a failed safe-write is
// surfaced as false and callers degrade gracefully.
package store

import (
	"context"
	"time"

	"github.com/lexcache/lexcache/internal/errors"
)

// SafeWrite stores a scalar value with the given TTL and verifies that the
// same key immediately reads back the written value (string equality).
// Returns false on mismatch, on not-ready, or on any storage error.
func (s *Store) SafeWrite(ctx context.Context, key, value string, ttl time.Duration) bool {
	if !s.Ready() {
		log.Warn("safe write skipped, store not ready", "key", key)
		return false
	}

	if err := s.SetWithTTL(ctx, key, value, ttl); err != nil {
		s.logWriteFailure("safe write failed", key, err)
		return false
	}

	readBack, found, err := s.Get(ctx, key)
	if err != nil {
		s.logWriteFailure("safe write read-back failed", key, err)
		return false
	}
	if !found || readBack != value {
		log.Error("safe write verification mismatch", "key", key,
			"found", found, "error", errors.ErrVerificationFailed)
		return false
	}

	return true
}

// SafeHashWrite stores hash fields with the given TTL and verifies only
// that the first written field reads back as present. Full value comparison
// for multi-field hashes is unnecessary for the guard's purpose, which is
// detecting total failure, not partial drift.
//
// A zero TTL leaves the key's expiry untouched.
func (s *Store) SafeHashWrite(ctx context.Context, key string, fields []Field, ttl time.Duration) bool {
	if len(fields) == 0 {
		return false
	}
	if !s.Ready() {
		log.Warn("safe hash write skipped, store not ready", "key", key)
		return false
	}

	if err := s.HSet(ctx, key, fields); err != nil {
		s.logWriteFailure("safe hash write failed", key, err)
		return false
	}

	ok, err := s.HFieldExists(ctx, key, fields[0].Name)
	if err != nil {
		s.logWriteFailure("safe hash write read-back failed", key, err)
		return false
	}
	if !ok {
		log.Error("safe hash write verification mismatch", "key", key,
			"field", fields[0].Name, "error", errors.ErrVerificationFailed)
		return false
	}

	if ttl > 0 {
		if _, err := s.Expire(ctx, key, ttl); err != nil {
			s.logWriteFailure("safe hash write expire failed", key, err)
			return false
		}
	}

	return true
}

// logWriteFailure logs a safe-write failure, flagging the read-only replica
// condition distinctly since it means this node should not be written to
// at all.
func (s *Store) logWriteFailure(msg, key string, err error) {
	if errors.IsReadOnlyReplica(err) {
		log.Error(msg, "key", key, "cause", "read-only replica", "error", err)
		return
	}
	if errors.IsNotReady(err) {
		log.Warn(msg, "key", key, "cause", "store not ready")
		return
	}
	log.Error(msg, "key", key, "error", err)
}
