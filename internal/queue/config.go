package queue

import "time"

// Queue lane names. The set is fixed: each lane maps to one capability of
// the runner interface and carries its own retry, rate, and concurrency
// configuration.
const (
	QueueResearch   = "research"
	QueueEnrichment = "enrichment"
	QueueReports    = "reports"
	QueueSignals    = "signals"
)

// Definition is the configuration-time contract for one lane. It is not
// mutable through the job API; jobs freeze their retry parameters from it
// at enqueue time.
type Definition struct {
	Retry RetryPolicy

	// RateMax admissions per RateWindow; 0 means no admission limit.
	RateMax    int
	RateWindow time.Duration

	// Concurrency is the worker pool size for the lane.
	Concurrency int
}

// Definitions returns the fixed per-lane configuration table.
func Definitions() map[string]Definition {
	return map[string]Definition{
		QueueResearch: {
			Retry:       RetryPolicy{MaxAttempts: 3, Strategy: BackoffExponential, BaseDelay: 5 * time.Second},
			RateMax:     10,
			RateWindow:  time.Minute,
			Concurrency: 2,
		},
		QueueEnrichment: {
			Retry:       RetryPolicy{MaxAttempts: 2, Strategy: BackoffFixed, BaseDelay: 10 * time.Second},
			RateMax:     50,
			RateWindow:  time.Minute,
			Concurrency: 5,
		},
		QueueReports: {
			Retry:       RetryPolicy{MaxAttempts: 2, Strategy: BackoffFixed, BaseDelay: 3 * time.Second},
			RateMax:     20,
			RateWindow:  time.Hour,
			Concurrency: 1,
		},
		QueueSignals: {
			Retry:       RetryPolicy{MaxAttempts: 5, Strategy: BackoffExponential, BaseDelay: time.Second},
			Concurrency: 10,
		},
	}
}

// Names returns the lane names in their conventional display order.
func Names() []string {
	return []string{QueueResearch, QueueEnrichment, QueueReports, QueueSignals}
}
