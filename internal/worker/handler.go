// Package worker drives one queue lane with a bounded pool of goroutines.
//
// A Handler is registered per lane before the pool starts. Handlers
// represent arbitrary external operations (AI research, scraping, CRM
// calls); this package never depends on their concrete implementations —
// adapters satisfy the Runner capability interface.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mhagen/prospectq/internal/queue"
)

// Handler is the function executed for each claimed job. It receives the
// job's payload and a progress callback (0–100, observability only).
// A non-nil error triggers the lane's retry policy; a nil error marks the
// job completed with the returned result.
type Handler func(ctx context.Context, payload json.RawMessage, progress func(int)) (json.RawMessage, error)

// Runner is the capability interface the surrounding product implements:
// one method per lane, each an opaque async operation that returns a result
// document or fails. Adapters behind it call the excluded external
// collaborators (AI, scraping, CRM).
type Runner interface {
	RunResearch(ctx context.Context, payload json.RawMessage, progress func(int)) (json.RawMessage, error)
	RunEnrichment(ctx context.Context, payload json.RawMessage, progress func(int)) (json.RawMessage, error)
	RunReport(ctx context.Context, payload json.RawMessage, progress func(int)) (json.RawMessage, error)
	RunSignal(ctx context.Context, payload json.RawMessage, progress func(int)) (json.RawMessage, error)
}

// HandlerFor selects the Runner capability for the named lane.
func HandlerFor(r Runner, queueName string) (Handler, error) {
	switch queueName {
	case queue.QueueResearch:
		return r.RunResearch, nil
	case queue.QueueEnrichment:
		return r.RunEnrichment, nil
	case queue.QueueReports:
		return r.RunReport, nil
	case queue.QueueSignals:
		return r.RunSignal, nil
	default:
		return nil, fmt.Errorf("%w: %s", queue.ErrUnknownQueue, queueName)
	}
}
