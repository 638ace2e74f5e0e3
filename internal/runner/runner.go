// Package runner holds the placeholder adapters behind the worker.Runner
// and batch.ItemRunner capability interfaces. The real adapters — AI company
// research, contact enrichment, report generation, signal processing — live
// with the dashboard integrations and are wired in at deployment; these
// stand-ins acknowledge the work so the queues and batches are exercisable
// end to end.
package runner

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"

	"github.com/mhagen/prospectq/internal/batch"
)

// Stub implements worker.Runner and batch.ItemRunner with acknowledge-only
// operations.
type Stub struct {
	log *slog.Logger
}

// New creates a Stub runner.
func New() *Stub {
	return &Stub{log: slog.Default()}
}

func (s *Stub) RunResearch(_ context.Context, payload json.RawMessage, progress func(int)) (json.RawMessage, error) {
	s.log.Info("research job received", "payload_len", len(payload))
	progress(100)
	return json.RawMessage(`{"status":"acknowledged"}`), nil
}

func (s *Stub) RunEnrichment(_ context.Context, payload json.RawMessage, progress func(int)) (json.RawMessage, error) {
	s.log.Info("enrichment job received", "payload_len", len(payload))
	progress(100)
	return json.RawMessage(`{"status":"acknowledged"}`), nil
}

func (s *Stub) RunReport(_ context.Context, payload json.RawMessage, progress func(int)) (json.RawMessage, error) {
	s.log.Info("report job received", "payload_len", len(payload))
	progress(100)
	return json.RawMessage(`{"status":"acknowledged"}`), nil
}

func (s *Stub) RunSignal(_ context.Context, payload json.RawMessage, progress func(int)) (json.RawMessage, error) {
	s.log.Info("signal job received", "payload_len", len(payload))
	progress(100)
	return json.RawMessage(`{"status":"acknowledged"}`), nil
}

// Score derives a stable pseudo-estimate from the item ID so batch ordering
// is deterministic until the real scoring adapters are wired in.
func (s *Stub) Score(_ context.Context, itemID string, order batch.PriorityOrder) float64 {
	h := fnv.New32a()
	h.Write([]byte(string(order)))
	h.Write([]byte(itemID))
	return float64(h.Sum32()%1000) / 10
}

func (s *Stub) Run(_ context.Context, itemID string) (batch.Outcome, error) {
	s.log.Info("batch item received", "item_id", itemID)
	return batch.Outcome{
		Payload: json.RawMessage(`{"status":"acknowledged"}`),
		Score:   s.Score(context.Background(), itemID, batch.OrderRelevance),
	}, nil
}
