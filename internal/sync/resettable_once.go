// Package sync provides thread-safe synchronization primitives.
package sync

import (
	"sync"
	"sync/atomic"
)

// ResettableOnce is like sync.Once but can be safely reset.
//
// Unlike sync.Once, ResettableOnce can be reset to allow the function
// to be called again. This is useful for reconnection scenarios where
// initialization must re-run after a disconnect, which sync.Once cannot
// support while other goroutines might be calling Do().
//
// ResettableOnce is safe for concurrent use.
type ResettableOnce struct {
	done uint32
	m    sync.Mutex
}

// Do calls the function f if and only if Do has not been called
// since the last Reset (or ever, if Reset was never called).
//
// If multiple goroutines call Do simultaneously, only one will execute f.
// The other calls block until f returns, then return without calling f.
func (o *ResettableOnce) Do(f func()) {
	if atomic.LoadUint32(&o.done) == 1 {
		return
	}

	o.m.Lock()
	defer o.m.Unlock()

	if o.done == 0 {
		defer atomic.StoreUint32(&o.done, 1)
		f()
	}
}

// DoWithError calls the function f if and only if Do has not been called
// since the last Reset. Returns the error from f.
//
// If f returns an error, the Once is NOT marked as done, allowing retry.
func (o *ResettableOnce) DoWithError(f func() error) error {
	if atomic.LoadUint32(&o.done) == 1 {
		return nil
	}

	o.m.Lock()
	defer o.m.Unlock()

	if o.done == 0 {
		if err := f(); err != nil {
			return err
		}
		atomic.StoreUint32(&o.done, 1)
	}
	return nil
}

// Done reports whether Do has completed since the last Reset.
func (o *ResettableOnce) Done() bool {
	return atomic.LoadUint32(&o.done) == 1
}

// Reset allows the next call to Do to execute again.
func (o *ResettableOnce) Reset() {
	o.m.Lock()
	defer o.m.Unlock()
	atomic.StoreUint32(&o.done, 0)
}
