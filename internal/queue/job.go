// Package queue implements the in-memory multi-lane job queue: the Job
// model and its state machine, per-queue retry and admission policies, and
// the priority-ordered Queue with atomic claim semantics.
//
// Each lane (research, enrichment, reports, signals) gets its own Queue
// instance; jobs are claimed by exactly one worker at a time, retried with
// backoff on failure, and retained briefly after reaching a terminal state
// for inspection.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Job. A job is in exactly one state at
// a time.
type State string

const (
	// StateWaiting means the job is eligible for dequeue.
	StateWaiting State = "waiting"
	// StateActive means a worker has claimed the job and is executing it.
	StateActive State = "active"
	// StateDelayed means the job failed and is waiting out its backoff;
	// invisible to dequeue until ReadyAt passes.
	StateDelayed State = "delayed"
	// StateCompleted means the handler returned a result.
	StateCompleted State = "completed"
	// StateFailed means retries are exhausted (or none were allowed).
	StateFailed State = "failed"
)

// terminal reports whether s is a resting state that Clean may evict.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Priority orders jobs within one queue. Higher values dequeue first;
// ties are broken FIFO by enqueue order.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// ParsePriority converts the wire representation ("low", "normal", "high")
// to a Priority. The empty string maps to PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// String returns the wire representation of p.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Sentinel errors for queue and job operations. Callers match with errors.Is.
var (
	ErrUnknownQueue   = errors.New("unknown queue")
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrJobActive      = errors.New("job is active")
	ErrNotRetryable   = errors.New("job is not in a retryable state")
)

// Job is one unit of asynchronous work: an immutable descriptor (ID, queue,
// payload, priority, retry parameters) plus mutable execution state owned by
// the queue that holds it. Retry parameters are resolved from the queue's
// policy at enqueue time and never change afterwards, even if the policy
// table is edited.
type Job struct {
	ID       string          `json:"id"`
	Queue    string          `json:"queue"`
	Payload  json.RawMessage `json:"payload"`
	Priority Priority        `json:"-"`

	State    State `json:"state"`
	Attempts int   `json:"attempts"`
	Progress int   `json:"progress"`

	MaxAttempts     int           `json:"max_attempts"`
	BackoffStrategy Strategy      `json:"backoff_strategy"`
	BackoffBase     time.Duration `json:"-"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ReadyAt    *time.Time `json:"ready_at,omitempty"`

	// seq is the enqueue sequence number, used as the FIFO tiebreaker.
	seq uint64
}

// newJob builds a waiting Job for the named queue with retry parameters
// frozen from policy.
func newJob(queueName string, payload json.RawMessage, prio Priority, policy RetryPolicy, now time.Time) *Job {
	return &Job{
		ID:              uuid.NewString(),
		Queue:           queueName,
		Payload:         payload,
		Priority:        prio,
		State:           StateWaiting,
		MaxAttempts:     policy.MaxAttempts,
		BackoffStrategy: policy.Strategy,
		BackoffBase:     policy.BaseDelay,
		CreatedAt:       now,
	}
}

// retryPolicy reconstructs the policy frozen on the job at enqueue time.
func (j *Job) retryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: j.MaxAttempts,
		Strategy:    j.BackoffStrategy,
		BaseDelay:   j.BackoffBase,
	}
}
