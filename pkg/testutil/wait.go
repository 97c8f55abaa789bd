package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Await reads from ch until match returns true, failing the test if timeout
// elapses or ch closes first. The matching value is returned.
func Await[T any](t *testing.T, ch <-chan T, timeout time.Duration, match func(T) bool) T {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case val, ok := <-ch:
			require.True(t, ok, "channel closed early")
			if match(val) {
				return val
			}
		case <-deadline:
			require.FailNow(t, "condition not met", "within %v", timeout)
		}
	}
}

// AwaitClosed drains ch until it is closed, failing the test if timeout
// elapses first.
func AwaitClosed[T any](t *testing.T, ch <-chan T, timeout time.Duration) {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			require.FailNow(t, "channel not closed", "within %v", timeout)
		}
	}
}
