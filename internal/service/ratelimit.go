package service

import (
	"sync"
	"time"
)

// RateLimitResult is the outcome of one sliding-window check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type rateBucket struct {
	stamps []time.Time
}

// SlidingWindowLimiter is a coarse in-process abuse guard, layered in front
// of (not instead of) the access gate. Buckets are pruned lazily on each
// check and idle buckets are evicted periodically; state is lost on restart
// by design.
type SlidingWindowLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*rateBucket
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewSlidingWindowLimiter creates a limiter that evicts buckets idle for
// longer than idleTTL.
func NewSlidingWindowLimiter(idleTTL time.Duration) *SlidingWindowLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	l := &SlidingWindowLimiter{
		buckets: make(map[string]*rateBucket),
		idleTTL: idleTTL,
		now:     time.Now,
	}
	l.lastSweep = l.now()
	return l
}

// Check records a request for key if it fits within limit per window and
// reports the decision. A non-positive limit disables the check.
func (l *SlidingWindowLimiter) Check(key string, limit int, window time.Duration) RateLimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	b := l.buckets[key]
	if b == nil {
		b = &rateBucket{}
		l.buckets[key] = b
	}

	cutoff := now.Add(-window)
	kept := b.stamps[:0]
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.stamps = kept

	if limit > 0 && len(b.stamps) >= limit {
		retry := b.stamps[0].Add(window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: retry}
	}

	b.stamps = append(b.stamps, now)
	remaining := limit - len(b.stamps)
	if limit <= 0 || remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{Allowed: true, Remaining: remaining}
}

// sweepLocked drops buckets whose newest entry is older than idleTTL.
func (l *SlidingWindowLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if len(b.stamps) == 0 || now.Sub(b.stamps[len(b.stamps)-1]) >= l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// Reset discards all buckets.
func (l *SlidingWindowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*rateBucket)
}
