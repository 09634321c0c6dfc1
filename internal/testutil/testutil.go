// Package testutil provides test utilities for the lexcache project.
//
// It includes an in-process Redis (miniredis) wired into a store adapter,
// and the error channel pattern for safe testing with goroutines.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lexcache/lexcache/internal/store"
)

// NewStore starts an in-process Redis and returns a ready store adapter
// bound to it. Both are cleaned up when the test finishes.
func NewStore(t *testing.T) (*store.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewWithClient(client, store.Config{OpTimeout: 5 * time.Second})

	t.Cleanup(func() {
		client.Close()
	})

	return st, mr
}

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest provides safe testing utilities for goroutines.
//
// Using t.Fatal or t.FailNow in a goroutine causes the test to hang because
// these functions call runtime.Goexit() which only exits the current
// goroutine, not the test goroutine. This type provides the error channel
// pattern as a safe alternative.
//
// Example usage:
//
//	gt := testutil.NewGoroutineTest(t)
//	defer gt.Wait()
//
//	gt.Go(func() error {
//	    resp, err := client.Ping(ctx)
//	    if err != nil {
//	        return fmt.Errorf("ping failed: %w", err)
//	    }
//	    _ = resp
//	    return nil
//	})
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100), // buffered to avoid blocking
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs a function in a goroutine and collects any errors.
//
// The function should return an error instead of calling t.Fatal.
// All errors are collected and reported when Wait() is called.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("Error channel full, dropping error: %v", err)
			}
		}
	}()
}

// Context returns the test context, cancelled when Wait completes.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Wait waits for all goroutines and reports collected errors.
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)
	for err := range gt.errors {
		gt.t.Error(err)
	}
}
