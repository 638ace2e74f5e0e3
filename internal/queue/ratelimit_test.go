package queue

import (
	"testing"
	"time"
)

// newTestLimiter builds a Limiter with a controllable clock. Advance the
// clock by assigning through the returned pointer.
func newTestLimiter(maxJobs int, window time.Duration) (*Limiter, *time.Time) {
	l := NewLimiter(maxJobs, window)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterAdmitsExactlyMaxJobsPerWindow(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(5, time.Minute)
	for i := 1; i <= 5; i++ {
		if !l.Allow() {
			t.Errorf("admission %d: should be allowed (window of 5)", i)
		}
	}
	if l.Allow() {
		t.Error("6th admission within the window should be denied")
	}
}

func TestLimiterDoesNotRefillMidWindow(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(2, 200*time.Millisecond)
	if !l.Allow() || !l.Allow() {
		t.Fatal("first two admissions should be allowed")
	}
	if l.Allow() {
		t.Fatal("third admission should be denied")
	}

	// Deep inside the same window: still denied. Admission capacity only
	// returns when the window rolls over, never gradually.
	*clock = clock.Add(120 * time.Millisecond)
	if l.Allow() {
		t.Error("admission 120ms into a 200ms window should still be denied")
	}
}

func TestLimiterResetsWhenWindowRollsOver(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("admission %d should be allowed", i)
		}
	}
	if l.Allow() {
		t.Fatal("window exhausted; admission should be denied")
	}

	*clock = clock.Add(time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Errorf("admission %d after rollover should be allowed", i)
		}
	}
	if l.Allow() {
		t.Error("new window exhausted; admission should be denied")
	}
}

func TestNilLimiterAdmitsEverything(t *testing.T) {
	t.Parallel()

	var l *Limiter
	for i := 0; i < 1000; i++ {
		if !l.Allow() {
			t.Fatal("nil limiter must always admit")
		}
	}
}
