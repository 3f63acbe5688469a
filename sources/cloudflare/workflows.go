package cloudflare

import (
	"context"
	"net/url"
)

type WorkflowsClient struct {
	client *Client
}

func (w *WorkflowsClient) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	return listAt[Workflow](ctx, w.client, nil, "workflows")
}

func (w *WorkflowsClient) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	return getAt[Workflow](ctx, w.client, "workflows", id)
}

// ListRuns returns the runs of a workflow, optionally bounded by the from and
// to timestamps.
func (w *WorkflowsClient) ListRuns(ctx context.Context, workflowID, from, to string) ([]WorkflowRun, error) {
	query := url.Values{}
	if from != "" {
		query.Set("from", from)
	}
	if to != "" {
		query.Set("to", to)
	}
	return listAt[WorkflowRun](ctx, w.client, query, "workflows", workflowID, "runs")
}

// GetLatestRun returns the most recently queued run, or nil when the workflow
// has never run.
func (w *WorkflowsClient) GetLatestRun(ctx context.Context, workflowID string) (*WorkflowRun, error) {
	runs, err := w.ListRuns(ctx, workflowID, "", "")
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return latestBy(runs, func(r *WorkflowRun) string {
		if r.QueuedOn != "" {
			return r.QueuedOn
		}
		return r.StartedOn
	}), nil
}
