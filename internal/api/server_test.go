package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mhagen/prospectq/internal/batch"
	"github.com/mhagen/prospectq/internal/manager"
)

// stubRunner satisfies both the queue handler and batch item capabilities.
// Everything succeeds; queue jobs stay waiting because no pools are started.
type stubRunner struct{}

func (stubRunner) RunResearch(_ context.Context, _ json.RawMessage, _ func(int)) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (stubRunner) RunEnrichment(_ context.Context, _ json.RawMessage, _ func(int)) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (stubRunner) RunReport(_ context.Context, _ json.RawMessage, _ func(int)) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (stubRunner) RunSignal(_ context.Context, _ json.RawMessage, _ func(int)) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (stubRunner) Score(_ context.Context, _ string, _ batch.PriorityOrder) float64 { return 42 }

func (stubRunner) Run(_ context.Context, _ string) (batch.Outcome, error) {
	return batch.Outcome{Payload: []byte(`{"ok":true}`), Score: 42}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *manager.Manager) {
	t.Helper()
	mgr, err := manager.New(stubRunner{}, manager.Config{})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	orch := batch.New(stubRunner{}, 5*time.Second)
	ts := httptest.NewServer(NewServer(mgr, orch).Handler())
	t.Cleanup(ts.Close)
	return ts, mgr
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, out.Bytes()
}

func enqueue(t *testing.T, ts *httptest.Server, queueName string, payload any) string {
	t.Helper()
	resp, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/api/v1/jobs", map[string]any{
		"queue":   queueName,
		"payload": payload,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enqueue status = %d, body = %s", resp.StatusCode, body)
	}
	var created struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if created.JobID == "" {
		t.Fatal("enqueue returned empty job_id")
	}
	return created.JobID
}

func TestEnqueueAndGetJob(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	id := enqueue(t, ts, "research", map[string]any{"company_id": "acme", "depth": "deep"})

	resp, body := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/api/v1/jobs/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", resp.StatusCode, body)
	}

	var j JobResponse
	if err := json.Unmarshal(body, &j); err != nil {
		t.Fatal(err)
	}
	if j.ID != id || j.Queue != "research" || j.State != "waiting" {
		t.Errorf("job = %+v, want waiting research job %s", j, id)
	}
	if j.Priority != "normal" {
		t.Errorf("priority = %s, want normal default", j.Priority)
	}
	if j.MaxAttempts != 3 || j.BackoffStrategy != "exponential" {
		t.Errorf("retry fields = %d/%s, want 3/exponential", j.MaxAttempts, j.BackoffStrategy)
	}
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/api/v1/jobs", map[string]any{
		"queue":   "enrichment",
		"payload": map[string]any{"company_id": "wrong-shape"},
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s; want 422", resp.StatusCode, body)
	}
}

func TestEnqueueRejectsUnknownQueue(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/api/v1/jobs", map[string]any{
		"queue":   "marketing",
		"payload": map[string]any{},
	})
	// The queue name is an enum in the schema, so this fails validation.
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/api/v1/jobs/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteJobRemoves(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	id := enqueue(t, ts, "signals", map[string]any{"signal_id": "sig-1"})

	resp, body := doJSON(t, ts.Client(), http.MethodDelete, ts.URL+"/api/v1/jobs/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/api/v1/jobs/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteJobRetryConflictsForWaitingJob(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	id := enqueue(t, ts, "signals", map[string]any{"signal_id": "sig-2"})

	resp, _ := doJSON(t, ts.Client(), http.MethodDelete, ts.URL+"/api/v1/jobs/"+id+"?action=retry", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("retry of waiting job = %d, want 409", resp.StatusCode)
	}
}

func TestQueueStats(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	enqueue(t, ts, "research", map[string]any{"company_id": "acme"})
	enqueue(t, ts, "research", map[string]any{"company_id": "globex"})

	resp, body := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/api/v1/queues/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var stats struct {
		Queues map[string]struct {
			Waiting int `json:"waiting"`
		} `json:"queues"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats.Queues) != 4 {
		t.Errorf("queues reported = %d, want 4", len(stats.Queues))
	}
	if stats.Queues["research"].Waiting != 2 || stats.Total != 2 {
		t.Errorf("research waiting = %d, total = %d, want 2/2", stats.Queues["research"].Waiting, stats.Total)
	}
}

func TestQueueActionsPauseAndResume(t *testing.T) {
	t.Parallel()

	ts, mgr := newTestServer(t)

	resp, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/api/v1/queues/reports/actions", map[string]any{
		"action": "pause",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d, body = %s", resp.StatusCode, body)
	}
	q, err := mgr.Queue("reports")
	if err != nil {
		t.Fatal(err)
	}
	if !q.Paused() {
		t.Error("reports queue not paused")
	}

	resp, _ = doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/api/v1/queues/reports/actions", map[string]any{
		"action": "resume",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatal("resume failed")
	}
	if q.Paused() {
		t.Error("reports queue still paused")
	}
}

func TestQueueActionCleanRejectsBadDuration(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/api/v1/queues/signals/actions", map[string]any{
		"action":     "clean",
		"older_than": "yesterday",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestBulkDeleteRequiresSelector(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, ts.Client(), http.MethodDelete, ts.URL+"/api/v1/queues/signals/jobs", map[string]any{})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestBulkDeleteByState(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	enqueue(t, ts, "enrichment", map[string]any{"contact_id": "c1"})
	enqueue(t, ts, "enrichment", map[string]any{"contact_id": "c2"})

	resp, body := doJSON(t, ts.Client(), http.MethodDelete, ts.URL+"/api/v1/queues/enrichment/jobs", map[string]any{
		"state": "waiting",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var out struct {
		Removed int `json:"removed"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Removed != 2 {
		t.Errorf("removed = %d, want 2", out.Removed)
	}
}

func TestRunBatchEndpoint(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/api/v1/batches", map[string]any{
		"item_ids":        []string{"item-1", "item-2", "item-3"},
		"priority_order":  "relevance",
		"max_concurrency": 2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var out RunBatchBody
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Succeeded != 3 || out.Failed != 0 || out.TimedOut != 0 {
		t.Errorf("counts = %d/%d/%d, want 3/0/0", out.Succeeded, out.Failed, out.TimedOut)
	}
	if len(out.Items) != 3 || out.Items[0].ItemID != "item-1" {
		t.Errorf("items = %+v, want 3 results in input order", out.Items)
	}
	if out.AverageScore != 42 {
		t.Errorf("average score = %v, want 42", out.AverageScore)
	}
}

func TestRunBatchRejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	ids := make([]string, 21)
	for i := range ids {
		ids[i] = fmt.Sprintf("item-%d", i+1)
	}

	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/api/v1/batches", map[string]any{
		"item_ids": ids,
	})
	// maxItems is part of the schema, so validation rejects this before the
	// orchestrator sees it.
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, body := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var h healthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" {
		t.Errorf("status = %s, want ok", h.Status)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
