// Package ratelimit provides fixed-window admission control for inbound chat
// requests. Each key (a route scope plus client address) gets an independent
// counting window; the first call in a window opens it and consumes a slot.
// HTTP middleware derives the key, applies the limiter and sets the standard
// rate limit response headers.
package ratelimit

import "time"

// Limiter defines the admission contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Check decides whether one more request for key is admitted within a
	// window of the given duration that allows at most max admissions.
	// The max and window values only take effect when a new window opens.
	Check(key string, max int, window time.Duration) Decision

	// Len reports how many keys currently hold a window record.
	Len() int

	// Reset discards every window record.
	Reset()

	// Close stops background goroutines and releases resources.
	Close()
}

// Decision is the outcome of a single Check call.
type Decision struct {
	Admitted  bool      // Whether the request may proceed
	Limit     int       // The max supplied by the caller
	Remaining int       // Admissions left in the current window
	ResetAt   time.Time // When the current window expires
	CheckedAt time.Time // Limiter clock reading the decision was made at
}

// RetryAfter returns how long a rejected caller should wait before the
// window resets, relative to now. It never returns less than zero.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}
