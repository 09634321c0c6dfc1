package sync

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestResettableOnceDo(t *testing.T) {
	var once ResettableOnce
	var count atomic.Int32

	once.Do(func() { count.Add(1) })
	if c := count.Load(); c != 1 {
		t.Errorf("first Do: count = %d, want 1", c)
	}

	once.Do(func() { count.Add(1) })
	if c := count.Load(); c != 1 {
		t.Errorf("second Do: count = %d, want 1", c)
	}
}

func TestResettableOnceReset(t *testing.T) {
	var once ResettableOnce
	var count atomic.Int32

	once.Do(func() { count.Add(1) })
	once.Reset()
	once.Do(func() { count.Add(1) })

	if c := count.Load(); c != 2 {
		t.Errorf("after reset: count = %d, want 2", c)
	}
}

func TestResettableOnceDone(t *testing.T) {
	var once ResettableOnce

	if once.Done() {
		t.Error("Done() should be false initially")
	}

	once.Do(func() {})
	if !once.Done() {
		t.Error("Done() should be true after Do")
	}

	once.Reset()
	if once.Done() {
		t.Error("Done() should be false after Reset")
	}
}

func TestResettableOnceDoWithError(t *testing.T) {
	var once ResettableOnce
	testErr := errors.New("boom")

	if err := once.DoWithError(func() error { return testErr }); err != testErr {
		t.Errorf("DoWithError returned %v, want %v", err, testErr)
	}
	if once.Done() {
		t.Error("Done() should be false after error")
	}

	if err := once.DoWithError(func() error { return nil }); err != nil {
		t.Errorf("DoWithError returned %v, want nil", err)
	}
	if !once.Done() {
		t.Error("Done() should be true after success")
	}
}

func TestResettableOnceConcurrent(t *testing.T) {
	var once ResettableOnce
	var count atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			once.Do(func() { count.Add(1) })
		}()
	}
	wg.Wait()

	if c := count.Load(); c != 1 {
		t.Errorf("concurrent Do: count = %d, want 1", c)
	}
}
