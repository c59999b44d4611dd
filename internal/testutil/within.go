package testutil

import (
	"testing"
	"time"
)

// Within runs fn on its own goroutine and fails the test if fn has not
// returned after d.
//
// Engine tests park goroutines on purpose. Wrapping the blocking part in
// Within turns a missed wakeup into a test failure instead of a hung test
// binary. The goroutine running fn is leaked on timeout.
func Within(t testing.TB, d time.Duration, fn func()) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("did not finish within %s", d)
	}
}

// WaitFor polls cond every millisecond until it returns true or d elapses.
// It reports whether cond became true.
//
// Unlike require.Eventually, WaitFor may be called from goroutines other
// than the test goroutine.
func WaitFor(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
