package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestWindowLimiter_AdmitsExactlyMax(t *testing.T) {
	for _, max := range []int{1, 2, 5, 30} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			clock := newFakeClock()
			limiter := NewWindowLimiter(WithClock(clock.Now))
			defer limiter.Close()

			for i := 0; i < max; i++ {
				d := limiter.Check("chat:10.0.0.1", max, time.Minute)
				require.True(t, d.Admitted, "call %d should be admitted", i+1)
				assert.Equal(t, max-1-i, d.Remaining)
			}

			d := limiter.Check("chat:10.0.0.1", max, time.Minute)
			assert.False(t, d.Admitted)
			assert.Equal(t, 0, d.Remaining)
		})
	}
}

func TestWindowLimiter_RejectionKeepsWindowReset(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWindowLimiter(WithClock(clock.Now))
	defer limiter.Close()

	first := limiter.Check("k", 2, time.Minute)
	clock.Advance(10 * time.Second)
	limiter.Check("k", 2, time.Minute)
	clock.Advance(10 * time.Second)
	rejected := limiter.Check("k", 2, time.Minute)

	assert.False(t, rejected.Admitted)
	assert.Equal(t, 0, rejected.Remaining)
	assert.Equal(t, first.ResetAt, rejected.ResetAt)
	assert.Equal(t, clock.Now().Add(40*time.Second), rejected.ResetAt)
}

func TestWindowLimiter_NewWindowAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWindowLimiter(WithClock(clock.Now))
	defer limiter.Close()

	for i := 0; i < 4; i++ {
		limiter.Check("k", 3, time.Minute)
	}

	clock.Advance(time.Minute)
	d := limiter.Check("k", 3, time.Minute)
	assert.True(t, d.Admitted)
	assert.Equal(t, 2, d.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)
}

func TestWindowLimiter_SingleSlotScenario(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWindowLimiter(WithClock(clock.Now))
	defer limiter.Close()

	d := limiter.Check("k", 1, time.Second)
	assert.True(t, d.Admitted)
	assert.Equal(t, 0, d.Remaining)

	clock.Advance(500 * time.Millisecond)
	d = limiter.Check("k", 1, time.Second)
	assert.False(t, d.Admitted)
	assert.Equal(t, 0, d.Remaining)

	clock.Advance(501 * time.Millisecond)
	d = limiter.Check("k", 1, time.Second)
	assert.True(t, d.Admitted)
	assert.Equal(t, 0, d.Remaining)
}

func TestWindowLimiter_ThreeInSuccession(t *testing.T) {
	limiter := NewWindowLimiter(WithClock(newFakeClock().Now))
	defer limiter.Close()

	var remaining []int
	for i := 0; i < 3; i++ {
		d := limiter.Check("k", 3, time.Minute)
		require.True(t, d.Admitted)
		remaining = append(remaining, d.Remaining)
	}
	assert.Equal(t, []int{2, 1, 0}, remaining)

	d := limiter.Check("k", 3, time.Minute)
	assert.False(t, d.Admitted)
}

func TestWindowLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewWindowLimiter(WithClock(newFakeClock().Now))
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		limiter.Check("chat:a", 2, time.Minute)
	}
	assert.False(t, limiter.Check("chat:a", 2, time.Minute).Admitted)

	d := limiter.Check("chat:b", 2, time.Minute)
	assert.True(t, d.Admitted)
	assert.Equal(t, 1, d.Remaining)
}

func TestWindowLimiter_ParametersFixedAtWindowCreation(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWindowLimiter(WithClock(clock.Now))
	defer limiter.Close()

	first := limiter.Check("k", 2, time.Minute)
	// A larger max or longer window mid-window does not extend the live window.
	d := limiter.Check("k", 100, time.Hour)
	assert.True(t, d.Admitted)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, first.ResetAt, d.ResetAt)
	assert.Equal(t, 100, d.Limit)

	assert.False(t, limiter.Check("k", 100, time.Hour).Admitted)

	clock.Advance(time.Minute)
	d = limiter.Check("k", 100, time.Hour)
	assert.True(t, d.Admitted)
	assert.Equal(t, 99, d.Remaining)
	assert.Equal(t, clock.Now().Add(time.Hour), d.ResetAt)
}

func TestWindowLimiter_ExpiryBoundaryIsInclusive(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWindowLimiter(WithClock(clock.Now))
	defer limiter.Close()

	limiter.Check("k", 1, time.Second)
	clock.Advance(999 * time.Millisecond)
	assert.False(t, limiter.Check("k", 1, time.Second).Admitted)

	// expiresAt <= now opens a new window.
	clock.Advance(time.Millisecond)
	assert.True(t, limiter.Check("k", 1, time.Second).Admitted)
}

func TestWindowLimiter_ResetAndLen(t *testing.T) {
	limiter := NewWindowLimiter(WithClock(newFakeClock().Now))
	defer limiter.Close()

	limiter.Check("a", 1, time.Minute)
	limiter.Check("b", 1, time.Minute)
	assert.Equal(t, 2, limiter.Len())
	assert.False(t, limiter.Check("a", 1, time.Minute).Admitted)

	limiter.Reset()
	assert.Equal(t, 0, limiter.Len())
	assert.True(t, limiter.Check("a", 1, time.Minute).Admitted)
}

func TestWindowLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWindowLimiter(WithClock(clock.Now))
	defer limiter.Close()

	limiter.Check("short", 5, time.Second)
	limiter.Check("long", 5, time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, 1, limiter.Len())

	limiter.mu.Lock()
	_, exists := limiter.records["long"]
	limiter.mu.Unlock()
	assert.True(t, exists)
}

func TestWindowLimiter_BackgroundSweep(t *testing.T) {
	limiter := NewWindowLimiter(WithSweepInterval(20 * time.Millisecond))
	defer limiter.Close()

	limiter.Check("ephemeral", 5, 10*time.Millisecond)
	require.Equal(t, 1, limiter.Len())

	assert.Eventually(t, func() bool {
		return limiter.Len() == 0
	}, time.Second, 10*time.Millisecond, "expired record should be swept")
}

func TestWindowLimiter_MaxKeys(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWindowLimiter(WithClock(clock.Now), WithMaxKeys(2))
	defer limiter.Close()

	limiter.Check("a", 1, time.Minute)
	clock.Advance(time.Second)
	limiter.Check("b", 1, time.Minute)
	clock.Advance(time.Second)
	limiter.Check("c", 1, time.Minute)

	assert.Equal(t, 2, limiter.Len())
	limiter.mu.Lock()
	_, hasA := limiter.records["a"]
	limiter.mu.Unlock()
	assert.False(t, hasA, "record closest to expiry should be evicted")

	// Existing keys never trigger eviction.
	assert.False(t, limiter.Check("b", 1, time.Minute).Admitted)
	assert.Equal(t, 2, limiter.Len())
}

func TestWindowLimiter_MaxKeysPrefersExpired(t *testing.T) {
	clock := newFakeClock()
	limiter := NewWindowLimiter(WithClock(clock.Now), WithMaxKeys(2))
	defer limiter.Close()

	limiter.Check("long", 1, time.Hour)
	limiter.Check("short", 1, time.Second)
	clock.Advance(2 * time.Second)
	limiter.Check("new", 1, time.Minute)

	limiter.mu.Lock()
	_, hasLong := limiter.records["long"]
	_, hasShort := limiter.records["short"]
	limiter.mu.Unlock()
	assert.True(t, hasLong)
	assert.False(t, hasShort)
}

func TestWindowLimiter_ConcurrentAdmissionsNeverExceedMax(t *testing.T) {
	limiter := NewWindowLimiter()
	defer limiter.Close()

	const max = 25
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if limiter.Check("shared", max, time.Hour).Admitted {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(max), admitted.Load())
}

func TestWindowLimiter_Close(t *testing.T) {
	limiter := NewWindowLimiter(WithSweepInterval(10 * time.Millisecond))
	limiter.Close()
	// Should not panic on double close
	limiter.Close()
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Now()
	d := Decision{ResetAt: now.Add(3 * time.Second)}
	assert.Equal(t, 3*time.Second, d.RetryAfter(now))
	assert.Equal(t, time.Duration(0), d.RetryAfter(now.Add(time.Minute)))
}
