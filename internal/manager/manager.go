// Package manager owns the full set of queue lanes and their worker pools,
// and exposes the queue-wide operations the dashboard uses: stats, routing,
// pause/resume, cleaning, and cross-queue job lookup.
//
// A Manager is an explicitly constructed instance with a clear start/drain
// lifecycle — there are no package-level queue singletons.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mhagen/prospectq/internal/queue"
	"github.com/mhagen/prospectq/internal/worker"
)

// Config holds manager tuning parameters (sourced from config.Config).
type Config struct {
	// PollInterval is the worker pools' idle poll cadence; zero keeps the
	// pool default.
	PollInterval time.Duration
	// Retention is how long terminal jobs stay inspectable before the
	// janitor evicts them.
	Retention time.Duration
	// JanitorInterval is how often the janitor sweep runs.
	JanitorInterval time.Duration
}

// Manager is the registry of all queue lanes and their pools.
type Manager struct {
	queues map[string]*queue.Queue
	pools  map[string]*worker.Pool
	cfg    Config
	log    *slog.Logger
}

// New builds one queue and one pool per lane in the fixed configuration
// table, binding each pool to the matching Runner capability.
func New(r worker.Runner, cfg Config) (*Manager, error) {
	if cfg.Retention == 0 {
		cfg.Retention = time.Hour
	}
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 5 * time.Minute
	}

	m := &Manager{
		queues: make(map[string]*queue.Queue),
		pools:  make(map[string]*worker.Pool),
		cfg:    cfg,
		log:    slog.Default(),
	}

	for name, def := range queue.Definitions() {
		h, err := worker.HandlerFor(r, name)
		if err != nil {
			return nil, fmt.Errorf("build queue %s: %w", name, err)
		}
		q := queue.New(name, def)
		p := worker.New(q, h, def.Concurrency)
		if cfg.PollInterval > 0 {
			p.SetPollInterval(cfg.PollInterval)
		}
		m.queues[name] = q
		m.pools[name] = p
	}
	return m, nil
}

// Start launches every worker pool plus the janitor goroutine, then blocks
// until ctx is cancelled and all pools have drained their in-flight jobs.
func (m *Manager) Start(ctx context.Context) {
	var wg sync.WaitGroup

	for name, p := range m.pools {
		wg.Add(1)
		go func(name string, p *worker.Pool) {
			defer wg.Done()
			p.Start(ctx)
		}(name, p)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.runJanitor(ctx)
	}()

	wg.Wait()
	m.log.Info("queue manager stopped")
}

// runJanitor periodically evicts terminal jobs older than the retention
// window so memory stays bounded. Uses time.NewTicker (not time.After) to
// avoid timer leaks.
func (m *Manager) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("janitor stopping")
			return
		case <-ticker.C:
			for name, n := range m.CleanAll(m.cfg.Retention, "", 0) {
				if n > 0 {
					m.log.Info("janitor evicted terminal jobs", "queue", name, "count", n)
				}
			}
		}
	}
}

// AddJob validates and enqueues a job onto the named lane. Fails with
// queue.ErrUnknownQueue for an unrecognized name and queue.ErrInvalidPayload
// for schema violations.
func (m *Manager) AddJob(queueName string, payload json.RawMessage, prio queue.Priority) (queue.Job, error) {
	q, ok := m.queues[queueName]
	if !ok {
		return queue.Job{}, fmt.Errorf("%w: %s", queue.ErrUnknownQueue, queueName)
	}
	return q.Enqueue(payload, prio)
}

// Stats returns per-lane counts for every queue.
func (m *Manager) Stats() map[string]queue.Counts {
	out := make(map[string]queue.Counts, len(m.queues))
	for name, q := range m.queues {
		out[name] = q.Stats()
	}
	return out
}

// FindJob scans every lane for the job — IDs are opaque, so the caller may
// not know which queue owns it. Returns the snapshot and the owning queue
// name, or queue.ErrJobNotFound if absent everywhere.
func (m *Manager) FindJob(jobID string) (queue.Job, string, error) {
	for _, name := range queue.Names() {
		j, err := m.queues[name].Inspect(jobID)
		if err == nil {
			return j, name, nil
		}
	}
	return queue.Job{}, "", queue.ErrJobNotFound
}

// RemoveJob removes the job from whichever lane owns it.
func (m *Manager) RemoveJob(jobID string) error {
	_, name, err := m.FindJob(jobID)
	if err != nil {
		return err
	}
	return m.queues[name].Remove(jobID)
}

// RetryJob force-re-enqueues a failed job in whichever lane owns it.
func (m *Manager) RetryJob(jobID string) error {
	_, name, err := m.FindJob(jobID)
	if err != nil {
		return err
	}
	return m.queues[name].Retry(jobID)
}

// Pause stops dequeues on one lane; in-flight jobs run to completion.
func (m *Manager) Pause(queueName string) error {
	q, ok := m.queues[queueName]
	if !ok {
		return fmt.Errorf("%w: %s", queue.ErrUnknownQueue, queueName)
	}
	q.Pause()
	return nil
}

// Resume re-enables dequeues on one lane.
func (m *Manager) Resume(queueName string) error {
	q, ok := m.queues[queueName]
	if !ok {
		return fmt.Errorf("%w: %s", queue.ErrUnknownQueue, queueName)
	}
	q.Resume()
	return nil
}

// Clean evicts terminal jobs older than olderThan on one lane. See
// queue.Clean for the state and max semantics.
func (m *Manager) Clean(queueName string, olderThan time.Duration, state queue.State, max int) (int, error) {
	q, ok := m.queues[queueName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", queue.ErrUnknownQueue, queueName)
	}
	return q.Clean(olderThan, state, max), nil
}

// PauseAll pauses every lane.
func (m *Manager) PauseAll() {
	for _, q := range m.queues {
		q.Pause()
	}
}

// ResumeAll resumes every lane.
func (m *Manager) ResumeAll() {
	for _, q := range m.queues {
		q.Resume()
	}
}

// CleanAll runs Clean on every lane and returns per-lane eviction counts.
func (m *Manager) CleanAll(olderThan time.Duration, state queue.State, max int) map[string]int {
	out := make(map[string]int, len(m.queues))
	for name, q := range m.queues {
		out[name] = q.Clean(olderThan, state, max)
	}
	return out
}

// RemoveJobsByIDs bulk-removes the listed jobs from one lane.
func (m *Manager) RemoveJobsByIDs(queueName string, ids []string) (int, error) {
	q, ok := m.queues[queueName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", queue.ErrUnknownQueue, queueName)
	}
	return q.RemoveByIDs(ids), nil
}

// RemoveJobsByState bulk-removes every job in the given state from one lane.
func (m *Manager) RemoveJobsByState(queueName string, state queue.State) (int, error) {
	q, ok := m.queues[queueName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", queue.ErrUnknownQueue, queueName)
	}
	return q.RemoveByState(state), nil
}

// Queue exposes one lane, mainly for tests and the API layer's pause check.
func (m *Manager) Queue(queueName string) (*queue.Queue, error) {
	q, ok := m.queues[queueName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrUnknownQueue, queueName)
	}
	return q, nil
}
