package ratelimit

import (
	"sync"
	"time"
)

// record is the per-key window state.
type record struct {
	remaining int
	expiresAt time.Time
}

// Option configures a WindowLimiter.
type Option func(*WindowLimiter)

// WithClock replaces time.Now as the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(l *WindowLimiter) {
		l.now = now
	}
}

// WithSweepInterval sets how often a background goroutine removes expired
// records. Zero disables the sweeper.
func WithSweepInterval(interval time.Duration) Option {
	return func(l *WindowLimiter) {
		l.sweepInterval = interval
	}
}

// WithMaxKeys caps the number of tracked keys. Zero means no cap.
func WithMaxKeys(n int) Option {
	return func(l *WindowLimiter) {
		l.maxKeys = n
	}
}

// WindowLimiter is an in-memory fixed-window limiter. Window boundaries are
// evaluated lazily on access; an optional background sweep removes records
// whose window has already expired so that idle keys do not accumulate.
type WindowLimiter struct {
	now           func() time.Time
	sweepInterval time.Duration
	maxKeys       int

	mu      sync.Mutex
	records map[string]*record
	done    chan struct{}
	closed  bool
}

// NewWindowLimiter creates a limiter and, when a sweep interval is configured,
// starts its background sweeper.
func NewWindowLimiter(opts ...Option) *WindowLimiter {
	l := &WindowLimiter{
		now:     time.Now,
		records: make(map[string]*record),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sweepInterval > 0 {
		go l.sweepLoop()
	}
	return l
}

// Check implements Limiter.
func (l *WindowLimiter) Check(key string, max int, window time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok || !rec.expiresAt.After(now) {
		if !ok && l.maxKeys > 0 && len(l.records) >= l.maxKeys {
			l.makeRoom(now)
		}
		rec = &record{
			remaining: max - 1,
			expiresAt: now.Add(window),
		}
		l.records[key] = rec
		return Decision{Admitted: true, Limit: max, Remaining: rec.remaining, ResetAt: rec.expiresAt, CheckedAt: now}
	}

	if rec.remaining <= 0 {
		return Decision{Admitted: false, Limit: max, Remaining: 0, ResetAt: rec.expiresAt, CheckedAt: now}
	}

	rec.remaining--
	return Decision{Admitted: true, Limit: max, Remaining: rec.remaining, ResetAt: rec.expiresAt, CheckedAt: now}
}

// Len implements Limiter.
func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Reset implements Limiter.
func (l *WindowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[string]*record)
}

// Sweep removes every record whose window has expired and returns how many
// were removed.
func (l *WindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

// Close stops the background sweeper. It is safe to call more than once.
func (l *WindowLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
}

func (l *WindowLimiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *WindowLimiter) sweepLocked(now time.Time) int {
	removed := 0
	for key, rec := range l.records {
		if !rec.expiresAt.After(now) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// makeRoom frees one slot for a new key. Expired records go first; if none
// have expired the record closest to expiry is evicted. Must hold l.mu.
func (l *WindowLimiter) makeRoom(now time.Time) {
	if l.sweepLocked(now) > 0 {
		return
	}

	var (
		victim   string
		earliest time.Time
		found    bool
	)
	for key, rec := range l.records {
		if !found || rec.expiresAt.Before(earliest) {
			victim, earliest, found = key, rec.expiresAt, true
		}
	}
	if found {
		delete(l.records, victim)
	}
}

var _ Limiter = (*WindowLimiter)(nil)
