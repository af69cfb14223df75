// Package utilstest contains helpers for tests depending on timing.
package utilstest

import (
	"testing"
	"time"
)

// Default polling settings.
const (
	DefaultInterval = 50 * time.Millisecond
	DefaultTimeout  = 5 * time.Second
)

// Condition returns nil once the awaited state is reached.
type Condition func() error

// Outcome describes how waiting for a condition ended.
type Outcome struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Eventually polls the condition every interval until it succeeds or timeout elapses.
// The condition is always evaluated at least once.
func Eventually(condition Condition, interval, timeout time.Duration) Outcome {
	started := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	outcome := Outcome{}
	for {
		outcome.Attempts = outcome.Attempts + 1
		outcome.Err = condition()
		if outcome.Err == nil {
			outcome.Elapsed = time.Since(started)
			return outcome
		}
		select {
		case <-deadline.C:
			outcome.Elapsed = time.Since(started)
			return outcome
		case <-ticker.C:
		}
	}
}

// MustEventually fails the test immediately when the condition does not succeed in time.
func MustEventually(t *testing.T, condition Condition, interval, timeout time.Duration) {
	t.Helper()
	outcome := Eventually(condition, interval, timeout)
	if outcome.Err != nil {
		t.Fatalf("condition not met after %d attempt(s) in %v: %v", outcome.Attempts, outcome.Elapsed, outcome.Err)
	}
}

// MustEventuallyWithDefaults is MustEventually with the default interval and timeout.
func MustEventuallyWithDefaults(t *testing.T, condition Condition) {
	t.Helper()
	MustEventually(t, condition, DefaultInterval, DefaultTimeout)
}
