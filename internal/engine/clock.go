// Package engine implements the session time-accounting core: the pause
// ledger, the countdown calculator, the check-in prompt scheduler and
// the finalizer. Everything external (persistence, locks, the backend
// API, the prompt UI, the server-time feed) is reached through the
// interfaces in ports.go.
package engine

import (
	"sync"
	"time"
)

// Clock supplies the current time. The engine never calls time.Now
// directly so tests and the server-time feed can substitute their own
// source.
type Clock interface {
	Now() time.Time
}

// SystemClock is the local wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FeedClock reports the value most recently received from a trusted
// server-time feed, falling back to the local clock until the first
// value arrives. Readings are monotonically non-decreasing from the
// caller's perspective even if the feed jumps backwards.
type FeedClock struct {
	mu    sync.Mutex
	local Clock
	feed  time.Time // most recent feed value, zero until first receive
	last  time.Time // last value returned by Now
}

// NewFeedClock creates a FeedClock that degrades to local while no feed
// value has been received.
func NewFeedClock(local Clock) *FeedClock {
	if local == nil {
		local = SystemClock{}
	}
	return &FeedClock{local: local}
}

// SetServerTime records a value pushed by the feed. Older values than
// the one already held are ignored.
func (c *FeedClock) SetServerTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.feed) {
		c.feed = t
	}
}

// Synced reports whether at least one feed value has been received.
func (c *FeedClock) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.feed.IsZero()
}

// Now returns the latest feed value, or the local clock before the
// first value arrives. A feed outage is silent degradation, not an
// error.
func (c *FeedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.feed
	if now.IsZero() {
		now = c.local.Now()
	}
	if now.Before(c.last) {
		now = c.last
	}
	c.last = now
	return now
}
