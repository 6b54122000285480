package wait

import (
	"testing"
	"time"
)

const DefaultTimeout = 2 * time.Second

// Until polls cond until it holds or the default timeout expires.
func Until(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// Never asserts cond stays false for the given window.
func Never(t *testing.T, what string, window time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatalf("unexpected %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
