// ABOUTME: Batch orchestrator: fans a bounded item set out to single-item operations.
// ABOUTME: Semaphore caps in-flight work; an overall deadline bounds batch latency.
//
// Package batch processes a fixed, caller-supplied set of work items (at
// most 20) with limited concurrency and aggregates a partial-failure-
// tolerant summary. Unlike the open-ended queues, a batch is a single
// synchronous-feeling call: the caller gets one Result once every item has
// finished or the deadline passes. Batches have no persisted identity —
// callers needing resumability must keep the returned Result themselves.
package batch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Batch input bounds.
const (
	MaxItems       = 20
	MinConcurrency = 1
	MaxConcurrency = 3

	// highValueScore is the result-score threshold counted in the summary.
	highValueScore = 80.0
	// maxErrorMessages caps the error list carried in the summary for display.
	maxErrorMessages = 5

	defaultDeadline = 2 * time.Minute
)

// Validation errors, surfaced synchronously before any item operation starts.
var (
	ErrEmptyBatch           = errors.New("batch is empty")
	ErrBatchTooLarge        = fmt.Errorf("batch exceeds %d items", MaxItems)
	ErrInvalidPriorityOrder = errors.New("invalid priority order")
	ErrInvalidConcurrency   = fmt.Errorf("concurrency must be between %d and %d", MinConcurrency, MaxConcurrency)
)

// PriorityOrder selects the heuristic used to order items before execution.
type PriorityOrder string

const (
	// OrderRelevance processes the items estimated most relevant first.
	OrderRelevance PriorityOrder = "relevance"
	// OrderEngagement processes the items with the highest engagement
	// estimate first.
	OrderEngagement PriorityOrder = "engagement"
	// OrderRandom shuffles items deterministically for the given input list.
	OrderRandom PriorityOrder = "random"
)

// Outcome is what a successful single-item operation produces: an opaque
// result document plus the score used for summary statistics.
type Outcome struct {
	Payload []byte
	Score   float64
}

// ItemRunner is the capability interface for single-item operations and
// their priority estimates. Implementations call the same external
// collaborators as the queue handlers.
type ItemRunner interface {
	// Score estimates an item's priority under the given heuristic.
	// Random ordering never consults it.
	Score(ctx context.Context, itemID string, order PriorityOrder) float64
	// Run performs the item operation. Run must observe ctx: when the
	// batch deadline passes, abandoned calls are expected to return early.
	Run(ctx context.Context, itemID string) (Outcome, error)
}

// Request is the orchestrator input. It is not persisted beyond the call.
type Request struct {
	ItemIDs        []string
	Order          PriorityOrder // empty selects OrderRelevance
	MaxConcurrency int           // zero selects 2
}

// ItemStatus is the per-item outcome classification.
type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
	// ItemTimedOut marks items abandoned when the batch deadline passed,
	// whether in flight or never started.
	ItemTimedOut ItemStatus = "timed_out"
)

// ItemResult is one item's slot in the batch summary, in input order.
type ItemResult struct {
	ItemID string     `json:"item_id"`
	Status ItemStatus `json:"status"`
	Score  float64    `json:"score,omitempty"`
	Result []byte     `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Result is the aggregate batch summary.
type Result struct {
	Items        []ItemResult `json:"items"`
	Succeeded    int          `json:"succeeded"`
	Failed       int          `json:"failed"`
	TimedOut     int          `json:"timed_out"`
	HighValue    int          `json:"high_value"`
	AverageScore float64      `json:"average_score"`
	Errors       []string     `json:"errors,omitempty"`
}

// Orchestrator drives batches against an ItemRunner. Each Run call gets its
// own concurrency group — batches never share slots with the queue workers.
type Orchestrator struct {
	runner   ItemRunner
	deadline time.Duration
	log      *slog.Logger
}

// New creates an Orchestrator. deadline bounds every Run call; zero selects
// the default.
func New(r ItemRunner, deadline time.Duration) *Orchestrator {
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	return &Orchestrator{runner: r, deadline: deadline, log: slog.Default()}
}

// Run validates req, orders its items by the selected heuristic, executes
// them with at most MaxConcurrency in flight, and aggregates the outcomes.
// One item's failure never aborts or blocks the rest; items still
// outstanding at the deadline are marked timed out. The returned error is
// non-nil only for invalid input.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	order, conc, err := normalize(req)
	if err != nil {
		return nil, err
	}

	ordered := o.orderItems(ctx, req.ItemIDs, order)

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]ItemResult, len(req.ItemIDs))
		slots   = make(chan struct{}, conc)
	)

dispatch:
	for _, it := range ordered {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			break dispatch // remaining items are abandoned
		}

		wg.Add(1)
		go func(it rankedItem) {
			defer wg.Done()
			defer func() { <-slots }()

			r := o.runItem(ctx, it.id)
			mu.Lock()
			results[it.inputIdx] = r
			mu.Unlock()
		}(it)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// In-flight operations are abandoned. Ones that observe the
		// cancellation report timed out themselves; slots still empty at
		// aggregation are classified the same way.
	}

	mu.Lock()
	snapshot := make([]ItemResult, len(results))
	copy(snapshot, results)
	mu.Unlock()

	return aggregate(req.ItemIDs, snapshot), nil
}

// runItem executes one item operation, containing errors and panics in the
// item's own result slot.
func (o *Orchestrator) runItem(ctx context.Context, itemID string) (res ItemResult) {
	res.ItemID = itemID
	defer func() {
		if r := recover(); r != nil {
			res = ItemResult{ItemID: itemID, Status: ItemFailed, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	out, err := o.runner.Run(ctx, itemID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			res.Status = ItemTimedOut
			return res
		}
		o.log.Warn("batch item failed", "item_id", itemID, "error", err)
		res.Status = ItemFailed
		res.Error = err.Error()
		return res
	}
	res.Status = ItemSucceeded
	res.Score = out.Score
	res.Result = out.Payload
	return res
}

// rankedItem pairs an item with its heuristic score and original position.
type rankedItem struct {
	id       string
	inputIdx int
	score    float64
}

// orderItems scores every item under the heuristic and sorts descending;
// ties keep input order. Random ordering draws scores from a generator
// seeded by the input IDs, so the same list always shuffles the same way.
func (o *Orchestrator) orderItems(ctx context.Context, ids []string, order PriorityOrder) []rankedItem {
	items := make([]rankedItem, len(ids))

	var rng *rand.Rand
	if order == OrderRandom {
		h := fnv.New64a()
		for _, id := range ids {
			h.Write([]byte(id))
			h.Write([]byte{0})
		}
		seed := h.Sum64()
		rng = rand.New(rand.NewPCG(seed, seed))
	}

	for i, id := range ids {
		it := rankedItem{id: id, inputIdx: i}
		if rng != nil {
			it.score = rng.Float64()
		} else {
			it.score = o.runner.Score(ctx, id, order)
		}
		items[i] = it
	}

	sort.SliceStable(items, func(i, k int) bool {
		return items[i].score > items[k].score
	})
	return items
}

// normalize applies defaults and validates the request bounds.
func normalize(req Request) (PriorityOrder, int, error) {
	if len(req.ItemIDs) == 0 {
		return "", 0, ErrEmptyBatch
	}
	if len(req.ItemIDs) > MaxItems {
		return "", 0, ErrBatchTooLarge
	}

	order := req.Order
	if order == "" {
		order = OrderRelevance
	}
	switch order {
	case OrderRelevance, OrderEngagement, OrderRandom:
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidPriorityOrder, req.Order)
	}

	conc := req.MaxConcurrency
	if conc == 0 {
		conc = 2
	}
	if conc < MinConcurrency || conc > MaxConcurrency {
		return "", 0, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, req.MaxConcurrency)
	}
	return order, conc, nil
}

// aggregate fills empty slots as timed out and computes the summary counts.
func aggregate(ids []string, items []ItemResult) *Result {
	res := &Result{Items: items}

	var scoreSum float64
	for i := range res.Items {
		if res.Items[i].Status == "" {
			res.Items[i] = ItemResult{ItemID: ids[i], Status: ItemTimedOut}
		}
		switch it := res.Items[i]; it.Status {
		case ItemSucceeded:
			res.Succeeded++
			scoreSum += it.Score
			if it.Score >= highValueScore {
				res.HighValue++
			}
		case ItemFailed:
			res.Failed++
			if len(res.Errors) < maxErrorMessages {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", it.ItemID, it.Error))
			}
		case ItemTimedOut:
			res.TimedOut++
		}
	}
	if res.Succeeded > 0 {
		res.AverageScore = scoreSum / float64(res.Succeeded)
	}
	return res
}
