// ABOUTME: Priority-ordered in-memory job queue for one lane, guarded by a mutex.
// ABOUTME: DequeueNext is the atomic claim point; Complete/Fail/Retry drive the state machine.
package queue

import (
	"container/heap"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// defaultCleanLimit bounds how many terminal jobs a single Clean call may
// evict, so a huge backlog cannot stall the caller.
const defaultCleanLimit = 1000

// Queue is the ordered, queryable store of jobs for one lane. All state is
// in memory behind a single mutex: waiting jobs live in a priority heap,
// delayed jobs in a side list promoted on dequeue, and every retained job
// (including terminal ones awaiting Clean) in the id index.
type Queue struct {
	name    string
	def     Definition
	limiter *Limiter

	mu      sync.Mutex
	paused  bool
	seq     uint64
	waiting waitHeap
	delayed []*Job
	jobs    map[string]*Job

	// now is swapped out by tests that walk jobs through backoff windows.
	now func() time.Time
}

// New builds a Queue for the named lane. Lanes with def.RateMax == 0 get no
// admission limiter.
func New(name string, def Definition) *Queue {
	var lim *Limiter
	if def.RateMax > 0 {
		lim = NewLimiter(def.RateMax, def.RateWindow)
	}
	return &Queue{
		name:    name,
		def:     def,
		limiter: lim,
		jobs:    make(map[string]*Job),
		now:     time.Now,
	}
}

// Name returns the lane name.
func (q *Queue) Name() string { return q.name }

// Definition returns the lane's configuration-time contract.
func (q *Queue) Definition() Definition { return q.def }

// Enqueue validates payload against the lane's shape, creates a waiting Job
// with retry parameters frozen from the lane policy, and returns a snapshot
// of it. Fails with ErrInvalidPayload before any queue mutation.
func (q *Queue) Enqueue(payload json.RawMessage, prio Priority) (Job, error) {
	if err := validatePayload(q.name, payload); err != nil {
		return Job{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	j := newJob(q.name, payload, prio, q.def.Retry, q.now())
	q.seq++
	j.seq = q.seq
	q.jobs[j.ID] = j
	heap.Push(&q.waiting, j)

	jobsEnqueued.WithLabelValues(q.name).Inc()
	return *j, nil
}

// DequeueNext claims the highest-priority, earliest-enqueued waiting job and
// transitions it to active, incrementing its attempt count. Delayed jobs
// whose backoff has elapsed become eligible first. Returns nil when the
// queue is empty, paused, or the admission limiter denies the claim — in
// the last case the candidate simply stays waiting.
func (q *Queue) DequeueNext() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.paused {
		return nil
	}
	q.promoteDueLocked()
	if q.waiting.Len() == 0 {
		return nil
	}
	if !q.limiter.Allow() {
		return nil
	}

	j := heap.Pop(&q.waiting).(*Job)
	j.State = StateActive
	j.Attempts++
	j.Progress = 0
	j.ReadyAt = nil
	t := q.now()
	j.StartedAt = &t

	cp := *j
	return &cp
}

// Complete records the handler's result on an active job and transitions it
// to completed. The job stays inspectable until Clean evicts it.
func (q *Queue) Complete(jobID string, result json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.State != StateActive {
		return fmt.Errorf("complete job %s: state is %s, not active", jobID, j.State)
	}

	j.State = StateCompleted
	j.Result = result
	j.Error = ""
	j.Progress = 100
	t := q.now()
	j.FinishedAt = &t

	jobsCompleted.WithLabelValues(q.name).Inc()
	return nil
}

// Fail records a handler failure on an active job. The job's frozen retry
// policy decides what happens: delayed with a computed ReadyAt when attempts
// remain, failed when they are exhausted.
func (q *Queue) Fail(jobID string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.State != StateActive {
		return fmt.Errorf("fail job %s: state is %s, not active", jobID, j.State)
	}

	if delay, retry := j.retryPolicy().NextDelay(j.Attempts); retry {
		j.State = StateDelayed
		// Error is reserved for the failed state; the pool already logged
		// this attempt's failure.
		j.Error = ""
		ready := q.now().Add(delay)
		j.ReadyAt = &ready
		q.delayed = append(q.delayed, j)
		jobsRetried.WithLabelValues(q.name).Inc()
		return nil
	}

	j.State = StateFailed
	j.Error = errMsg
	j.ReadyAt = nil
	t := q.now()
	j.FinishedAt = &t

	jobsFailed.WithLabelValues(q.name).Inc()
	return nil
}

// SetProgress updates an active job's progress (clamped to 0–100). Progress
// is observability only; updates for jobs no longer active are dropped.
func (q *Queue) SetProgress(jobID string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[jobID]; ok && j.State == StateActive {
		j.Progress = pct
	}
}

// Inspect returns a snapshot of the job, or ErrJobNotFound.
func (q *Queue) Inspect(jobID string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *j, nil
}

// Remove deletes a job from the queue in any state except active — an
// active job is owned by its worker until it reaches a terminal or delayed
// state.
func (q *Queue) Remove(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.State == StateActive {
		return ErrJobActive
	}
	q.evictLocked(j)
	return nil
}

// Retry force-re-enqueues a failed job: attempts reset to zero, error
// cleared, state back to waiting. Only failed jobs are retryable.
func (q *Queue) Retry(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.State != StateFailed {
		return fmt.Errorf("%w: %s", ErrNotRetryable, j.State)
	}

	j.State = StateWaiting
	j.Attempts = 0
	j.Error = ""
	j.Result = nil
	j.Progress = 0
	j.StartedAt = nil
	j.FinishedAt = nil
	j.ReadyAt = nil
	heap.Push(&q.waiting, j)
	return nil
}

// Counts is the per-state census of one queue.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Delayed   int `json:"delayed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Total sums all states.
func (c Counts) Total() int {
	return c.Waiting + c.Active + c.Delayed + c.Completed + c.Failed
}

// Stats counts retained jobs by state.
func (q *Queue) Stats() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	var c Counts
	for _, j := range q.jobs {
		switch j.State {
		case StateWaiting:
			c.Waiting++
		case StateActive:
			c.Active++
		case StateDelayed:
			c.Delayed++
		case StateCompleted:
			c.Completed++
		case StateFailed:
			c.Failed++
		}
	}
	return c
}

// Pause stops DequeueNext from returning jobs. Jobs already active run to
// completion; waiting jobs keep their order.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Resume makes waiting jobs eligible again.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
}

// Paused reports whether the queue is paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Clean evicts terminal jobs that finished more than olderThan ago. state
// narrows eviction to completed or failed jobs; the empty state means both.
// At most max jobs are removed per call (defaultCleanLimit when max <= 0).
// Returns the number evicted.
func (q *Queue) Clean(olderThan time.Duration, state State, max int) int {
	if max <= 0 {
		max = defaultCleanLimit
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-olderThan)
	removed := 0
	for _, j := range q.jobs {
		if removed >= max {
			break
		}
		if !j.State.terminal() {
			continue
		}
		if state != "" && j.State != state {
			continue
		}
		if j.FinishedAt == nil || !j.FinishedAt.Before(cutoff) {
			continue
		}
		q.evictLocked(j)
		removed++
	}
	return removed
}

// RemoveByIDs bulk-removes the listed jobs, skipping active jobs and unknown
// IDs. Returns the number removed.
func (q *Queue) RemoveByIDs(ids []string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for _, id := range ids {
		j, ok := q.jobs[id]
		if !ok || j.State == StateActive {
			continue
		}
		q.evictLocked(j)
		removed++
	}
	return removed
}

// RemoveByState bulk-removes every job in the given state. Active jobs are
// never removed. Returns the number removed.
func (q *Queue) RemoveByState(state State) int {
	if state == StateActive {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for _, j := range q.jobs {
		if j.State != state {
			continue
		}
		q.evictLocked(j)
		removed++
	}
	return removed
}

// promoteDueLocked moves delayed jobs whose ReadyAt has passed back to the
// waiting heap. Callers hold q.mu.
func (q *Queue) promoteDueLocked() {
	if len(q.delayed) == 0 {
		return
	}
	now := q.now()
	remaining := q.delayed[:0]
	for _, j := range q.delayed {
		if j.ReadyAt != nil && !j.ReadyAt.After(now) {
			j.State = StateWaiting
			j.ReadyAt = nil
			heap.Push(&q.waiting, j)
			continue
		}
		remaining = append(remaining, j)
	}
	q.delayed = remaining
}

// evictLocked removes j from the id index and whichever structure is
// holding it. Callers hold q.mu.
func (q *Queue) evictLocked(j *Job) {
	delete(q.jobs, j.ID)
	switch j.State {
	case StateWaiting:
		for i, w := range q.waiting {
			if w.ID == j.ID {
				heap.Remove(&q.waiting, i)
				break
			}
		}
	case StateDelayed:
		for i, d := range q.delayed {
			if d.ID == j.ID {
				q.delayed = append(q.delayed[:i], q.delayed[i+1:]...)
				break
			}
		}
	}
}

// ── Waiting heap ──────────────────────────────────────────────────────────────

// waitHeap orders waiting jobs by priority descending, then enqueue sequence
// ascending (FIFO within a priority).
type waitHeap []*Job

func (h waitHeap) Len() int { return len(h) }

func (h waitHeap) Less(i, k int) bool {
	if h[i].Priority != h[k].Priority {
		return h[i].Priority > h[k].Priority
	}
	return h[i].seq < h[k].seq
}

func (h waitHeap) Swap(i, k int) { h[i], h[k] = h[k], h[i] }

func (h *waitHeap) Push(x any) { *h = append(*h, x.(*Job)) }

func (h *waitHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}
