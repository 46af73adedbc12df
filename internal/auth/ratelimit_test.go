package auth

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, maxFailures int, lockout time.Duration) (*RateLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := newRateLimiter(maxFailures, lockout, clock.now)
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	defer rl.Stop()

	if rl.maxFailures != DefaultMaxFailures {
		t.Errorf("expected %d max failures, got %d", DefaultMaxFailures, rl.maxFailures)
	}
	if rl.lockout != DefaultLockout {
		t.Errorf("expected %v lockout, got %v", DefaultLockout, rl.lockout)
	}

	// Stop is idempotent.
	rl.Stop()
}

func TestRateLimiter_CheckLimit_NoAttempts(t *testing.T) {
	rl, _ := newTestLimiter(t, 3, time.Minute)

	if err := rl.CheckLimit("alice"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRateLimiter_RecordFailure_ProgressiveDelays(t *testing.T) {
	rl, _ := newTestLimiter(t, 5, time.Minute)

	want := []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 5 * time.Second, time.Minute}
	for i, expected := range want {
		if got := rl.RecordFailure("alice"); got != expected {
			t.Errorf("failure %d: expected %v delay, got %v", i+1, expected, got)
		}
	}

	if got := rl.AttemptCount("alice"); got != 5 {
		t.Errorf("expected 5 attempts, got %d", got)
	}
}

func TestRateLimiter_CheckLimit_EnforcesDelay(t *testing.T) {
	rl, clock := newTestLimiter(t, 5, time.Minute)

	for i, delay := range []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second} {
		rl.RecordFailure("alice")

		err := rl.CheckLimit("alice")
		var lockout *LockoutError
		if !errors.As(err, &lockout) {
			t.Fatalf("failure %d: expected LockoutError, got %v", i+1, err)
		}
		if lockout.RetryAfter != delay {
			t.Errorf("failure %d: expected %v retry, got %v", i+1, delay, lockout.RetryAfter)
		}

		clock.advance(delay - time.Millisecond)
		if rl.CheckLimit("alice") == nil {
			t.Errorf("failure %d: expected throttling until the delay has passed", i+1)
		}

		clock.advance(time.Millisecond)
		if err := rl.CheckLimit("alice"); err != nil {
			t.Errorf("failure %d: expected delay to expire, got %v", i+1, err)
		}
	}

	if err := rl.CheckLimit("bob"); err != nil {
		t.Errorf("unexpected error for bob: %v", err)
	}
}

func TestRateLimiter_Lockout(t *testing.T) {
	rl, clock := newTestLimiter(t, 3, time.Minute)

	for range 3 {
		rl.RecordFailure("alice")
	}

	err := rl.CheckLimit("alice")
	var lockout *LockoutError
	if !errors.As(err, &lockout) {
		t.Fatalf("expected LockoutError, got %v", err)
	}
	if !errors.Is(err, ErrLockedOut) {
		t.Error("LockoutError should match ErrLockedOut")
	}
	if lockout.RetryAfter != time.Minute {
		t.Errorf("expected 1m retry, got %v", lockout.RetryAfter)
	}

	// Other identities are unaffected.
	if err := rl.CheckLimit("bob"); err != nil {
		t.Errorf("unexpected error for bob: %v", err)
	}

	clock.advance(61 * time.Second)
	if err := rl.CheckLimit("alice"); err != nil {
		t.Errorf("expected lockout to expire, got %v", err)
	}
}

func TestRateLimiter_RecordSuccess_Clears(t *testing.T) {
	rl, _ := newTestLimiter(t, 2, time.Minute)

	rl.RecordFailure("alice")
	rl.RecordFailure("alice")
	if rl.CheckLimit("alice") == nil {
		t.Fatal("expected alice to be locked")
	}

	rl.RecordSuccess("alice")
	if err := rl.CheckLimit("alice"); err != nil {
		t.Errorf("expected no lockout after success, got %v", err)
	}
	if rl.TrackedCount() != 0 {
		t.Errorf("expected no tracked identities, got %d", rl.TrackedCount())
	}
}

func TestRateLimiter_PerformCleanup(t *testing.T) {
	rl, clock := newTestLimiter(t, 2, time.Minute)

	rl.RecordFailure("idle")
	rl.RecordFailure("locked")
	rl.RecordFailure("locked")

	clock.advance(CleanupThreshold + time.Second)
	rl.RecordFailure("recent")

	// Extend the lock so it outlives the idle threshold.
	rl.attempts["locked"].LockedUntil = clock.t.Add(time.Minute)

	rl.performCleanup()

	if rl.AttemptCount("idle") != 0 {
		t.Error("idle tracker should be removed")
	}
	if rl.AttemptCount("locked") == 0 {
		t.Error("locked tracker should be kept")
	}
	if rl.AttemptCount("recent") == 0 {
		t.Error("recent tracker should be kept")
	}
}

func TestFormatRetryAfter(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected int
	}{
		{0, 0},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{59*time.Second + time.Nanosecond, 60},
	}

	for _, tt := range tests {
		if got := FormatRetryAfter(tt.input); got != tt.expected {
			t.Errorf("FormatRetryAfter(%v) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}
