// ABOUTME: Per-queue admission limiter: a fixed window counter of dequeues.
// ABOUTME: A nil *Limiter admits everything, so unlimited lanes need no branching.
package queue

import (
	"sync"
	"time"
)

// Limiter gates dequeue admission for one queue: at most maxJobs claims per
// window. Once the count is reached, every further claim is denied until the
// window rolls over; there is no mid-window refill.
type Limiter struct {
	mu          sync.Mutex
	maxJobs     int
	window      time.Duration
	count       int
	windowStart time.Time

	// now is swapped out by tests that walk admissions across windows.
	now func() time.Time
}

// NewLimiter builds a Limiter admitting maxJobs dequeues per window.
func NewLimiter(maxJobs int, window time.Duration) *Limiter {
	return &Limiter{
		maxJobs: maxJobs,
		window:  window,
		now:     time.Now,
	}
}

// Allow consumes one admission if the current window has capacity. A nil
// receiver always admits — lanes without a rate limit hold a nil *Limiter.
//
// The counter is updated under the Limiter's own lock (the queue additionally
// calls Allow under its lock), so two workers can never both spend the last
// admission of a window.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
	if l.count >= l.maxJobs {
		return false
	}
	l.count++
	return true
}
