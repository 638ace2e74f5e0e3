package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mhagen/prospectq/internal/queue"
)

// registerJobRoutes wires up the job endpoints on the huma API.
//
//	POST   /jobs           — enqueue a job onto a named queue
//	GET    /jobs/{job_id}  — job snapshot, searched across all queues
//	DELETE /jobs/{job_id}  — remove, or force-retry a failed job
func registerJobRoutes(api huma.API, srv *Server) {
	huma.Register(api, huma.Operation{
		OperationID:   "enqueue-job",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Enqueue a job",
		Description:   "Creates a waiting job on the named queue. Enqueue is fire-and-forget: handler failures are recorded on the job, never returned here.",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusCreated,
	}, enqueueJobHandler(srv))

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get a job snapshot",
		Description: "Job IDs are opaque, so every queue is searched.",
		Tags:        []string{"Jobs"},
	}, getJobHandler(srv))

	huma.Register(api, huma.Operation{
		OperationID: "delete-job",
		Method:      http.MethodDelete,
		Path:        "/jobs/{job_id}",
		Summary:     "Remove or retry a job",
		Tags:        []string{"Jobs"},
	}, deleteJobHandler(srv))
}

// ── Response types ────────────────────────────────────────────────────────────

// JobResponse is the API representation of a job snapshot.
type JobResponse struct {
	ID              string          `json:"id"`
	Queue           string          `json:"queue"`
	State           string          `json:"state"`
	Priority        string          `json:"priority"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	BackoffStrategy string          `json:"backoff_strategy"`
	Progress        int             `json:"progress"`
	Payload         json.RawMessage `json:"payload"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       string          `json:"created_at"`            // RFC3339
	StartedAt       *string         `json:"started_at,omitempty"`  // RFC3339
	FinishedAt      *string         `json:"finished_at,omitempty"` // RFC3339
	ReadyAt         *string         `json:"ready_at,omitempty"`    // RFC3339
}

// jobToResponse converts a queue.Job snapshot to its API representation.
func jobToResponse(j queue.Job) *JobResponse {
	resp := &JobResponse{
		ID:              j.ID,
		Queue:           j.Queue,
		State:           string(j.State),
		Priority:        j.Priority.String(),
		Attempts:        j.Attempts,
		MaxAttempts:     j.MaxAttempts,
		BackoffStrategy: string(j.BackoffStrategy),
		Progress:        j.Progress,
		Payload:         j.Payload,
		Result:          j.Result,
		Error:           j.Error,
		CreatedAt:       j.CreatedAt.UTC().Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		s := j.StartedAt.UTC().Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if j.FinishedAt != nil {
		s := j.FinishedAt.UTC().Format(time.RFC3339)
		resp.FinishedAt = &s
	}
	if j.ReadyAt != nil {
		s := j.ReadyAt.UTC().Format(time.RFC3339)
		resp.ReadyAt = &s
	}
	return resp
}

// ── POST /jobs ────────────────────────────────────────────────────────────────

// EnqueueJobInput is the request body for job creation.
type EnqueueJobInput struct {
	Body struct {
		Queue    string          `json:"queue" enum:"research,enrichment,reports,signals" doc:"Target queue lane"`
		Payload  json.RawMessage `json:"payload" doc:"Queue-specific payload document"`
		Priority string          `json:"priority,omitempty" enum:"low,normal,high" doc:"Dequeue priority (default normal)"`
	}
}

// EnqueueJobOutput is the response for POST /jobs.
type EnqueueJobOutput struct {
	Body struct {
		JobID string `json:"job_id"`
	}
}

func enqueueJobHandler(srv *Server) func(context.Context, *EnqueueJobInput) (*EnqueueJobOutput, error) {
	return func(ctx context.Context, input *EnqueueJobInput) (*EnqueueJobOutput, error) {
		prio, err := queue.ParsePriority(input.Body.Priority)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid priority", err)
		}

		j, err := srv.mgr.AddJob(input.Body.Queue, input.Body.Payload, prio)
		if err != nil {
			return nil, mapQueueError(err)
		}

		out := &EnqueueJobOutput{}
		out.Body.JobID = j.ID
		return out, nil
	}
}

// ── GET /jobs/{job_id} ────────────────────────────────────────────────────────

// GetJobInput defines path parameters for the single-job endpoint.
type GetJobInput struct {
	JobID string `path:"job_id" doc:"Opaque job identifier"`
}

// GetJobOutput is the response for GET /jobs/{job_id}.
type GetJobOutput struct {
	Body *JobResponse
}

func getJobHandler(srv *Server) func(context.Context, *GetJobInput) (*GetJobOutput, error) {
	return func(_ context.Context, input *GetJobInput) (*GetJobOutput, error) {
		j, _, err := srv.mgr.FindJob(input.JobID)
		if err != nil {
			return nil, mapQueueError(err)
		}
		return &GetJobOutput{Body: jobToResponse(j)}, nil
	}
}

// ── DELETE /jobs/{job_id} ─────────────────────────────────────────────────────

// DeleteJobInput selects the job and the action to apply to it.
type DeleteJobInput struct {
	JobID  string `path:"job_id" doc:"Opaque job identifier"`
	Action string `query:"action" enum:"remove,retry" default:"remove" doc:"remove deletes the job; retry re-enqueues a failed job with attempts reset"`
}

// DeleteJobOutput is the response for DELETE /jobs/{job_id}.
type DeleteJobOutput struct {
	Body struct {
		JobID  string `json:"job_id"`
		Action string `json:"action"`
	}
}

func deleteJobHandler(srv *Server) func(context.Context, *DeleteJobInput) (*DeleteJobOutput, error) {
	return func(_ context.Context, input *DeleteJobInput) (*DeleteJobOutput, error) {
		var err error
		switch input.Action {
		case "retry":
			err = srv.mgr.RetryJob(input.JobID)
		default:
			err = srv.mgr.RemoveJob(input.JobID)
		}
		if err != nil {
			return nil, mapQueueError(err)
		}

		out := &DeleteJobOutput{}
		out.Body.JobID = input.JobID
		out.Body.Action = input.Action
		return out, nil
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// mapQueueError converts queue sentinel errors to huma status errors.
func mapQueueError(err error) error {
	switch {
	case errors.Is(err, queue.ErrUnknownQueue):
		return huma.Error404NotFound("unknown queue", err)
	case errors.Is(err, queue.ErrJobNotFound):
		return huma.Error404NotFound("job not found", err)
	case errors.Is(err, queue.ErrInvalidPayload):
		return huma.Error422UnprocessableEntity("invalid payload", err)
	case errors.Is(err, queue.ErrJobActive):
		return huma.Error409Conflict("job is active", err)
	case errors.Is(err, queue.ErrNotRetryable):
		return huma.Error409Conflict("job is not retryable", err)
	default:
		return err
	}
}
