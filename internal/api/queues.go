package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mhagen/prospectq/internal/queue"
)

// registerQueueRoutes wires up the queue-wide endpoints on the huma API.
//
//	GET    /queues/stats           — per-queue state counts plus a total
//	POST   /queues/{queue}/actions — pause | resume | clean
//	DELETE /queues/{queue}/jobs    — bulk removal by IDs or by state
func registerQueueRoutes(api huma.API, srv *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "queue-stats",
		Method:      http.MethodGet,
		Path:        "/queues/stats",
		Summary:     "Queue statistics",
		Tags:        []string{"Queues"},
	}, queueStatsHandler(srv))

	huma.Register(api, huma.Operation{
		OperationID: "queue-action",
		Method:      http.MethodPost,
		Path:        "/queues/{queue}/actions",
		Summary:     "Pause, resume, or clean a queue",
		Description: "Pause stops new dequeues; in-flight jobs run to completion. Clean evicts terminal jobs older than a grace period.",
		Tags:        []string{"Queues"},
	}, queueActionHandler(srv))

	huma.Register(api, huma.Operation{
		OperationID: "delete-queue-jobs",
		Method:      http.MethodDelete,
		Path:        "/queues/{queue}/jobs",
		Summary:     "Bulk-remove jobs from a queue",
		Description: "Removes the listed job IDs, or every job in the given state. Active jobs are never removed.",
		Tags:        []string{"Queues"},
	}, deleteQueueJobsHandler(srv))
}

// ── GET /queues/stats ─────────────────────────────────────────────────────────

// QueueStatsOutput is the response for GET /queues/stats.
type QueueStatsOutput struct {
	Body *QueueStatsBody
}

// QueueStatsBody carries per-queue counts plus the grand total.
type QueueStatsBody struct {
	Queues map[string]queue.Counts `json:"queues"`
	Total  int                     `json:"total"`
}

func queueStatsHandler(srv *Server) func(context.Context, *struct{}) (*QueueStatsOutput, error) {
	return func(_ context.Context, _ *struct{}) (*QueueStatsOutput, error) {
		stats := srv.mgr.Stats()
		total := 0
		for _, c := range stats {
			total += c.Total()
		}
		return &QueueStatsOutput{Body: &QueueStatsBody{Queues: stats, Total: total}}, nil
	}
}

// ── POST /queues/{queue}/actions ──────────────────────────────────────────────

// QueueActionInput selects the queue and the action to apply.
type QueueActionInput struct {
	Queue string `path:"queue" doc:"Queue lane name"`
	Body  struct {
		Action string `json:"action" enum:"pause,resume,clean" doc:"Action to apply"`
		// Clean options; ignored for pause and resume.
		OlderThan string `json:"older_than,omitempty" doc:"Grace period as a Go duration (default 1h); terminal jobs older than this are evicted"`
		State     string `json:"state,omitempty" enum:"completed,failed" doc:"Restrict clean to one terminal state (default both)"`
		Max       int    `json:"max,omitempty" minimum:"0" doc:"Max jobs evicted per call (default 1000)"`
	}
}

// QueueActionOutput is the response for POST /queues/{queue}/actions.
type QueueActionOutput struct {
	Body struct {
		Queue   string `json:"queue"`
		Action  string `json:"action"`
		Removed int    `json:"removed,omitempty"`
	}
}

func queueActionHandler(srv *Server) func(context.Context, *QueueActionInput) (*QueueActionOutput, error) {
	return func(_ context.Context, input *QueueActionInput) (*QueueActionOutput, error) {
		out := &QueueActionOutput{}
		out.Body.Queue = input.Queue
		out.Body.Action = input.Body.Action

		switch input.Body.Action {
		case "pause":
			if err := srv.mgr.Pause(input.Queue); err != nil {
				return nil, mapQueueError(err)
			}
		case "resume":
			if err := srv.mgr.Resume(input.Queue); err != nil {
				return nil, mapQueueError(err)
			}
		case "clean":
			olderThan := time.Hour
			if input.Body.OlderThan != "" {
				d, err := time.ParseDuration(input.Body.OlderThan)
				if err != nil {
					return nil, huma.Error422UnprocessableEntity("invalid older_than duration", err)
				}
				olderThan = d
			}
			n, err := srv.mgr.Clean(input.Queue, olderThan, queue.State(input.Body.State), input.Body.Max)
			if err != nil {
				return nil, mapQueueError(err)
			}
			out.Body.Removed = n
		}
		return out, nil
	}
}

// ── DELETE /queues/{queue}/jobs ───────────────────────────────────────────────

// DeleteQueueJobsInput selects jobs by explicit IDs or by state.
type DeleteQueueJobsInput struct {
	Queue string `path:"queue" doc:"Queue lane name"`
	Body  struct {
		IDs   []string `json:"ids,omitempty" doc:"Job IDs to remove"`
		State string   `json:"state,omitempty" enum:"waiting,delayed,completed,failed" doc:"Remove every job in this state instead"`
	}
}

// DeleteQueueJobsOutput is the response for DELETE /queues/{queue}/jobs.
type DeleteQueueJobsOutput struct {
	Body struct {
		Removed int `json:"removed"`
	}
}

func deleteQueueJobsHandler(srv *Server) func(context.Context, *DeleteQueueJobsInput) (*DeleteQueueJobsOutput, error) {
	return func(_ context.Context, input *DeleteQueueJobsInput) (*DeleteQueueJobsOutput, error) {
		if len(input.Body.IDs) == 0 && input.Body.State == "" {
			return nil, huma.Error422UnprocessableEntity("one of ids or state is required", nil)
		}

		var (
			removed int
			err     error
		)
		if len(input.Body.IDs) > 0 {
			removed, err = srv.mgr.RemoveJobsByIDs(input.Queue, input.Body.IDs)
		} else {
			removed, err = srv.mgr.RemoveJobsByState(input.Queue, queue.State(input.Body.State))
		}
		if err != nil {
			return nil, mapQueueError(err)
		}

		out := &DeleteQueueJobsOutput{}
		out.Body.Removed = removed
		return out, nil
	}
}
