package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window counter keyed by caller IP. It guards
// the webhook intake against floods; legitimate provider retries stay
// far under the limit.
type rateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	counts  map[string]int
	starts  map[string]time.Time
	lastGC  time.Time
	gcEvery time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		counts:  make(map[string]int),
		starts:  make(map[string]time.Time),
		gcEvery: 10 * window,
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if key == "" {
		return false
	}

	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastGC) > r.gcEvery {
		r.dropStale(now)
		r.lastGC = now
	}

	start, seen := r.starts[key]
	if !seen || now.Sub(start) > r.window {
		r.starts[key] = now
		r.counts[key] = 0
	}
	if r.counts[key] >= r.limit {
		return false
	}
	r.counts[key]++
	return true
}

// dropStale evicts windows that ended long ago so the maps stay bounded
// even when callers churn IPs. Runs under the lock.
func (r *rateLimiter) dropStale(now time.Time) {
	for key, start := range r.starts {
		if now.Sub(start) > r.window {
			delete(r.starts, key)
			delete(r.counts, key)
		}
	}
}
