package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*backoffLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	rl := newLoginRateLimiter()
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < maxFailures-1; i++ {
		rl.recordFailure("ada@uni.test")
		blocked, _ := rl.check("ada@uni.test")
		assert.False(t, blocked, "should not block before reaching maxFailures")
	}
}

func TestRateLimiter_BlocksAfterThreshold(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("ada@uni.test")
	}

	blocked, retryAfter := rl.check("ada@uni.test")
	require.True(t, blocked, "should block after maxFailures")
	assert.Equal(t, baseLockout, retryAfter)
}

func TestRateLimiter_ExponentialBackoffIsCapped(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("ada@uni.test")
	}
	_, first := rl.check("ada@uni.test")

	rl.recordFailure("ada@uni.test")
	_, second := rl.check("ada@uni.test")
	assert.Equal(t, 2*first, second, "one more failure doubles the lockout")

	for i := 0; i < 10; i++ {
		rl.recordFailure("ada@uni.test")
	}
	_, capped := rl.check("ada@uni.test")
	assert.Equal(t, maxLockout, capped)
}

func TestRateLimiter_LockoutElapses(t *testing.T) {
	rl, clock := newTestLimiter()

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("ada@uni.test")
	}
	clock.advance(baseLockout + time.Second)

	blocked, _ := rl.check("ada@uni.test")
	assert.False(t, blocked)
}

func TestRateLimiter_SuccessResetsCounter(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("ada@uni.test")
	}
	blocked, _ := rl.check("ada@uni.test")
	require.True(t, blocked)

	rl.recordSuccess("ada@uni.test")

	blocked, _ = rl.check("ada@uni.test")
	assert.False(t, blocked, "should not block after successful login")
}

func TestRateLimiter_IsolatesKeys(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("ada@uni.test")
	}
	blocked, _ := rl.check("ada@uni.test")
	require.True(t, blocked)

	blocked, _ = rl.check("grace@uni.test")
	assert.False(t, blocked, "rate limit for one email should not affect another")
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl, clock := newTestLimiter()
	rl.recordFailure("ada@uni.test")
	clock.advance(30 * time.Minute)
	rl.recordFailure("grace@uni.test")

	clock.advance(31 * time.Minute)
	rl.sweep()

	assert.Equal(t, 1, rl.len(), "only the record older than attemptExpiry is removed")
}

func TestIPRateLimiter_HigherThreshold(t *testing.T) {
	rl := newIPRateLimiter()
	for i := 0; i < ipMaxFailures-1; i++ {
		rl.recordFailure("203.0.113.7")
	}
	blocked, _ := rl.check("203.0.113.7")
	assert.False(t, blocked)

	rl.recordFailure("203.0.113.7")
	blocked, _ = rl.check("203.0.113.7")
	assert.True(t, blocked)
}

func TestRetryAfterString(t *testing.T) {
	assert.Equal(t, "1", retryAfterString(0))
	assert.Equal(t, "1", retryAfterString(300*time.Millisecond))
	assert.Equal(t, "60", retryAfterString(time.Minute))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:52100"
	assert.Equal(t, "203.0.113.7", clientIP(r))

	r.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", clientIP(r))
}

func TestLimiterKey(t *testing.T) {
	assert.Equal(t, "ada@uni.test", limiterKey("  Ada@Uni.TEST "))
	assert.Equal(t, limiterKey("ADA@UNI.TEST"), limiterKey("\uff21da@uni.test"), "fullwidth A folds to a")
}
