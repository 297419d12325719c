package validation

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by identifier.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time
}

// NewRateLimiter allows maxRequests per window for each identifier. A nil
// clock uses time.Now.
func NewRateLimiter(maxRequests int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         now,
		requests:    make(map[string][]time.Time),
	}
}

// IsAllowed records a request for id and reports whether it fits the window.
// Rejected requests are not recorded.
func (l *RateLimiter) IsAllowed(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(id, now)
	if len(recent) >= l.maxRequests {
		return false
	}
	l.requests[id] = append(recent, now)
	return true
}

// GetRemainingRequests reports how many more requests id may make now.
func (l *RateLimiter) GetRemainingRequests(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.maxRequests - len(l.prune(id, l.now()))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset forgets id.
func (l *RateLimiter) Reset(id string) {
	l.mu.Lock()
	delete(l.requests, id)
	l.mu.Unlock()
}

// Sweep drops identifiers with no requests inside the window.
func (l *RateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id := range l.requests {
		l.prune(id, now)
	}
}

// Len reports how many identifiers are tracked.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// prune must be called with l.mu held.
func (l *RateLimiter) prune(id string, now time.Time) []time.Time {
	times := l.requests[id]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	if i == len(times) {
		delete(l.requests, id)
		return nil
	}
	times = times[i:]
	l.requests[id] = times
	return times
}
