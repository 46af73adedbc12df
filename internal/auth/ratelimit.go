package auth

import (
	"sync"
	"time"
)

const (
	// DefaultMaxFailures is the number of consecutive proof failures that
	// locks an identity.
	DefaultMaxFailures = 5

	// DefaultLockout is how long a locked identity is refused.
	DefaultLockout = 60 * time.Second

	// CleanupThreshold is how long to keep attempt trackers for inactive identities.
	CleanupThreshold = 5 * time.Minute

	// CleanupIntervalRateLimit is how often inactive trackers are swept.
	CleanupIntervalRateLimit = 2 * time.Minute
)

// Progressive delays enforced after the first failures before lockout.
var failureDelays = []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second}

// AttemptTracker tracks proof failures for a single identity.
type AttemptTracker struct {
	Count       int       // Number of consecutive failed attempts
	LastFailed  time.Time // Timestamp of last failed attempt
	LockedUntil time.Time // Timestamp when lockout expires (zero if not locked)
}

// IsLocked returns true if the identity is locked out at now.
func (at *AttemptTracker) IsLocked(now time.Time) bool {
	return now.Before(at.LockedUntil)
}

// RetryAt returns when the next attempt is allowed: the later of the lockout
// expiry and the progressive delay after the last failure.
func (at *AttemptTracker) RetryAt() time.Time {
	retryAt := at.LastFailed.Add(delayFor(at.Count))
	if at.LockedUntil.After(retryAt) {
		return at.LockedUntil
	}
	return retryAt
}

// RateLimiter throttles identities after repeated proof failures.
// Delays grow 1s, 2s, 5s and the identity is locked once it reaches
// maxFailures consecutive failures.
type RateLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]*AttemptTracker // key: identity
	maxFailures int
	lockout     time.Duration
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewRateLimiter creates a rate limiter with background cleanup.
// Non-positive arguments select DefaultMaxFailures and DefaultLockout.
func NewRateLimiter(maxFailures int, lockout time.Duration) *RateLimiter {
	return newRateLimiter(maxFailures, lockout, time.Now)
}

func newRateLimiter(maxFailures int, lockout time.Duration, now func() time.Time) *RateLimiter {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if lockout <= 0 {
		lockout = DefaultLockout
	}

	rl := &RateLimiter{
		attempts:    make(map[string]*AttemptTracker),
		maxFailures: maxFailures,
		lockout:     lockout,
		now:         now,
		stopCh:      make(chan struct{}),
	}

	go rl.cleanupInactive()

	return rl
}

// CheckLimit reports whether identity may start a handshake. An identity that
// is locked, or still inside the delay following its last failure, yields a
// *LockoutError carrying the remaining wait.
func (rl *RateLimiter) CheckLimit(identity string) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	tracker, exists := rl.attempts[identity]
	if !exists {
		return nil
	}

	now := rl.now()
	if retryAt := tracker.RetryAt(); now.Before(retryAt) {
		return &LockoutError{RetryAfter: retryAt.Sub(now)}
	}

	return nil
}

// RecordFailure records a failed proof for identity and returns the delay
// CheckLimit enforces before the next attempt.
func (rl *RateLimiter) RecordFailure(identity string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tracker, exists := rl.attempts[identity]
	if !exists {
		tracker = &AttemptTracker{}
		rl.attempts[identity] = tracker
	}

	now := rl.now()
	tracker.Count++
	tracker.LastFailed = now

	if tracker.Count >= rl.maxFailures {
		tracker.LockedUntil = now.Add(rl.lockout)
		return rl.lockout
	}

	return delayFor(tracker.Count)
}

func delayFor(count int) time.Duration {
	if count <= 0 {
		return 0
	}
	if count > len(failureDelays) {
		return failureDelays[len(failureDelays)-1]
	}
	return failureDelays[count-1]
}

// RecordSuccess clears the failure count and any lockout for identity.
func (rl *RateLimiter) RecordSuccess(identity string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.attempts, identity)
}

// AttemptCount returns the current failure count for identity.
func (rl *RateLimiter) AttemptCount(identity string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	tracker, exists := rl.attempts[identity]
	if !exists {
		return 0
	}
	return tracker.Count
}

// TrackedCount returns the number of identities currently being tracked.
func (rl *RateLimiter) TrackedCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return len(rl.attempts)
}

// Stop stops the background cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupInactive() {
	ticker := time.NewTicker(CleanupIntervalRateLimit)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.performCleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// performCleanup drops unlocked trackers idle for longer than CleanupThreshold.
func (rl *RateLimiter) performCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-CleanupThreshold)

	for identity, tracker := range rl.attempts {
		if tracker.LastFailed.Before(cutoff) && !tracker.IsLocked(now) {
			delete(rl.attempts, identity)
		}
	}
}

// FormatRetryAfter formats a duration as whole seconds, rounded up.
func FormatRetryAfter(d time.Duration) int {
	seconds := int(d / time.Second)
	if d%time.Second > 0 {
		seconds++
	}
	return seconds
}
