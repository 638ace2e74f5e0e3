package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mhagen/prospectq/internal/queue"
)

// defaultPollInterval is how often an idle pool checks its queue for work.
const defaultPollInterval = 500 * time.Millisecond

// Pool runs up to concurrency handler invocations against one queue.
// Dequeue attempts never block: each poll tick fills whatever slots are
// free, and the queue itself enforces pause and admission limits.
type Pool struct {
	queue        *queue.Queue
	handler      Handler
	sem          chan struct{}
	wg           sync.WaitGroup
	pollInterval time.Duration
	log          *slog.Logger
}

// New creates a Pool of the given concurrency bound to q. concurrency
// values below 1 are raised to 1.
func New(q *queue.Queue, h Handler, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		queue:        q,
		handler:      h,
		sem:          make(chan struct{}, concurrency),
		pollInterval: defaultPollInterval,
		log:          slog.Default(),
	}
}

// SetPollInterval overrides the idle poll cadence. Must be called before Start.
func (p *Pool) SetPollInterval(d time.Duration) {
	if d > 0 {
		p.pollInterval = d
	}
}

// Start polls the queue until ctx is cancelled. On cancellation no new jobs
// are dequeued; Start returns once every in-flight handler has finished, so
// callers can use it for graceful process termination. Uses time.NewTicker
// (not time.After) to avoid timer leaks.
func (p *Pool) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.log.Info("worker pool started",
		"queue", p.queue.Name(), "concurrency", cap(p.sem))

	for {
		select {
		case <-ctx.Done():
			p.log.Info("worker pool stopping, draining", "queue", p.queue.Name())
			p.wg.Wait()
			p.log.Info("worker pool stopped", "queue", p.queue.Name())
			return
		case <-ticker.C:
			p.fill(ctx)
		}
	}
}

// RunOnce performs a single fill pass and waits for the claimed jobs to
// finish. Used in tests only.
func (p *Pool) RunOnce(ctx context.Context) {
	p.fill(ctx)
	p.wg.Wait()
}

// fill claims jobs until either no slot or no job is available.
func (p *Pool) fill(ctx context.Context) {
	for {
		select {
		case p.sem <- struct{}{}:
		default:
			return // all slots busy
		}

		job := p.queue.DequeueNext()
		if job == nil {
			<-p.sem
			return // empty, paused, or rate-limited; next tick retries
		}

		p.wg.Add(1)
		go func(job *queue.Job) {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			// In-flight jobs run to completion: shutdown stops new claims
			// but must not abort a claimed job mid-handler, so the handler
			// context survives the pool's cancellation.
			p.run(context.WithoutCancel(ctx), job)
		}(job)
	}
}

// run executes one claimed job and records its outcome. Handler errors and
// panics never escape — they become Fail calls subject to the retry policy.
func (p *Pool) run(ctx context.Context, job *queue.Job) {
	p.log.Info("executing job",
		"queue", p.queue.Name(), "job_id", job.ID, "attempt", job.Attempts)

	result, err := p.execute(ctx, job)
	if err != nil {
		p.log.Warn("job handler failed",
			"queue", p.queue.Name(), "job_id", job.ID,
			"attempt", job.Attempts, "error", err)
		if failErr := p.queue.Fail(job.ID, err.Error()); failErr != nil {
			p.log.Error("fail job", "job_id", job.ID, "error", failErr)
		}
		return
	}

	if err := p.queue.Complete(job.ID, result); err != nil {
		p.log.Error("complete job", "job_id", job.ID, "error", err)
		return
	}
	p.log.Info("job completed", "queue", p.queue.Name(), "job_id", job.ID)
}

// execute invokes the handler, converting a panic into an ordinary failure
// so one bad job can never take the pool down.
func (p *Pool) execute(ctx context.Context, job *queue.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	progress := func(pct int) { p.queue.SetProgress(job.ID, pct) }
	return p.handler(ctx, job.Payload, progress)
}
