package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mhagen/prospectq/internal/batch"
)

// registerBatchRoutes wires up the batch endpoint on the huma API.
//
//	POST /batches — run a bounded batch synchronously and return its summary
func registerBatchRoutes(api huma.API, srv *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "run-batch",
		Method:      http.MethodPost,
		Path:        "/batches",
		Summary:     "Run a batch",
		Description: "Processes up to 20 items with bounded concurrency and returns once every item finishes or the server-side deadline passes. Batches are not persisted; keep the result if you need it later.",
		Tags:        []string{"Batches"},
	}, runBatchHandler(srv))
}

// RunBatchInput is the request body for batch execution.
type RunBatchInput struct {
	Body struct {
		ItemIDs        []string `json:"item_ids" minItems:"1" maxItems:"20" doc:"Work item identifiers"`
		PriorityOrder  string   `json:"priority_order,omitempty" enum:"relevance,engagement,random" doc:"Ordering heuristic (default relevance)"`
		MaxConcurrency int      `json:"max_concurrency,omitempty" minimum:"1" maximum:"3" doc:"In-flight item operations (default 2)"`
	}
}

// BatchItemResponse is one item's slot in the batch summary, in input order.
type BatchItemResponse struct {
	ItemID string          `json:"item_id"`
	Status string          `json:"status"`
	Score  float64         `json:"score,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RunBatchOutput is the response for POST /batches.
type RunBatchOutput struct {
	Body *RunBatchBody
}

// RunBatchBody is the aggregate batch summary.
type RunBatchBody struct {
	Items        []BatchItemResponse `json:"items"`
	Succeeded    int                 `json:"succeeded"`
	Failed       int                 `json:"failed"`
	TimedOut     int                 `json:"timed_out"`
	HighValue    int                 `json:"high_value"`
	AverageScore float64             `json:"average_score"`
	Errors       []string            `json:"errors,omitempty"`
}

func runBatchHandler(srv *Server) func(context.Context, *RunBatchInput) (*RunBatchOutput, error) {
	return func(ctx context.Context, input *RunBatchInput) (*RunBatchOutput, error) {
		res, err := srv.orch.Run(ctx, batch.Request{
			ItemIDs:        input.Body.ItemIDs,
			Order:          batch.PriorityOrder(input.Body.PriorityOrder),
			MaxConcurrency: input.Body.MaxConcurrency,
		})
		if err != nil {
			return nil, mapBatchError(err)
		}

		body := &RunBatchBody{
			Items:        make([]BatchItemResponse, len(res.Items)),
			Succeeded:    res.Succeeded,
			Failed:       res.Failed,
			TimedOut:     res.TimedOut,
			HighValue:    res.HighValue,
			AverageScore: res.AverageScore,
			Errors:       res.Errors,
		}
		for i, it := range res.Items {
			body.Items[i] = BatchItemResponse{
				ItemID: it.ItemID,
				Status: string(it.Status),
				Score:  it.Score,
				Result: it.Result,
				Error:  it.Error,
			}
		}
		return &RunBatchOutput{Body: body}, nil
	}
}

// mapBatchError converts batch validation errors to huma status errors.
// Individual item failures never reach here — they live in the result slots.
func mapBatchError(err error) error {
	switch {
	case errors.Is(err, batch.ErrEmptyBatch),
		errors.Is(err, batch.ErrBatchTooLarge),
		errors.Is(err, batch.ErrInvalidPriorityOrder),
		errors.Is(err, batch.ErrInvalidConcurrency):
		return huma.Error422UnprocessableEntity("invalid batch request", err)
	default:
		return err
	}
}
