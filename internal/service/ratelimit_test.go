package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type limiterClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *limiterClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *limiterClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(idleTTL time.Duration) (*SlidingWindowLimiter, *limiterClock) {
	clock := &limiterClock{t: time.Unix(1_700_000_000, 0)}
	l := NewSlidingWindowLimiter(idleTTL)
	l.now = clock.Now
	l.lastSweep = clock.Now()
	return l, clock
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(time.Hour)

	for i := 0; i < 5; i++ {
		res := l.Check("u1", 5, time.Minute)
		require.True(t, res.Allowed, "request %d", i)
		require.Equal(t, 4-i, res.Remaining)
	}

	res := l.Check("u1", 5, time.Minute)
	require.False(t, res.Allowed)
	require.Zero(t, res.Remaining)
	require.Greater(t, res.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, res.RetryAfter, time.Minute)
}

func TestCheckWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(time.Hour)

	for i := 0; i < 3; i++ {
		require.True(t, l.Check("u1", 3, time.Minute).Allowed)
	}
	require.False(t, l.Check("u1", 3, time.Minute).Allowed)

	clock.advance(61 * time.Second)
	require.True(t, l.Check("u1", 3, time.Minute).Allowed)
}

func TestCheckKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Hour)

	require.True(t, l.Check("u1:chat", 1, time.Minute).Allowed)
	require.False(t, l.Check("u1:chat", 1, time.Minute).Allowed)
	require.True(t, l.Check("u1:story", 1, time.Minute).Allowed)
	require.True(t, l.Check("u2:chat", 1, time.Minute).Allowed)
}

func TestCheckZeroLimitDisablesCheck(t *testing.T) {
	l, _ := newTestLimiter(time.Hour)
	for i := 0; i < 50; i++ {
		require.True(t, l.Check("u1", 0, time.Minute).Allowed)
	}
}

func TestIdleBucketsEvicted(t *testing.T) {
	l, clock := newTestLimiter(10 * time.Minute)

	l.Check("idle-user", 5, time.Minute)
	require.Len(t, l.buckets, 1)

	clock.advance(11 * time.Minute)
	l.Check("active-user", 5, time.Minute)

	l.mu.Lock()
	_, idlePresent := l.buckets["idle-user"]
	_, activePresent := l.buckets["active-user"]
	l.mu.Unlock()
	require.False(t, idlePresent)
	require.True(t, activePresent)
}

func TestResetClearsState(t *testing.T) {
	l, _ := newTestLimiter(time.Hour)
	require.True(t, l.Check("u1", 1, time.Minute).Allowed)
	require.False(t, l.Check("u1", 1, time.Minute).Allowed)

	l.Reset()
	require.True(t, l.Check("u1", 1, time.Minute).Allowed)
}
