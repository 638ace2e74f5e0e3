package queue

import "time"

// Strategy selects how backoff grows between attempts.
type Strategy string

const (
	// BackoffFixed waits BaseDelay before every retry.
	BackoffFixed Strategy = "fixed"
	// BackoffExponential waits BaseDelay * 2^(attempt-1).
	BackoffExponential Strategy = "exponential"
)

// RetryPolicy is a queue's configuration-time retry contract: a pure mapping
// from the number of attempts already made to the delay before the next one,
// or exhaustion. It carries no mutable state and is safe to copy.
type RetryPolicy struct {
	MaxAttempts int
	Strategy    Strategy
	BaseDelay   time.Duration
}

// NextDelay returns the delay to wait before the attempt following the
// attempts-th one. The second return value is false once attempts has
// reached MaxAttempts — the job is out of retries.
func (p RetryPolicy) NextDelay(attempts int) (time.Duration, bool) {
	if attempts >= p.MaxAttempts {
		return 0, false
	}
	if p.Strategy == BackoffExponential {
		n := attempts
		if n < 1 {
			n = 1
		}
		return p.BaseDelay * time.Duration(1<<(n-1)), true
	}
	return p.BaseDelay, true
}
