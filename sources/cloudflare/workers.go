package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// WorkersClient lists Workers scripts and their deployments
type WorkersClient struct {
	client *Client
}

func (w *WorkersClient) ListScripts(ctx context.Context) ([]WorkerScript, error) {
	var scripts []WorkerScript
	if _, err := w.client.Get(ctx, w.client.accountPath("workers", "scripts"), nil, &scripts); err != nil {
		return nil, err
	}
	return scripts, nil
}

// GetScript returns nil when the script does not exist
func (w *WorkersClient) GetScript(ctx context.Context, name string) (*WorkerScript, error) {
	var script WorkerScript
	if _, err := w.client.Get(ctx, w.client.accountPath("workers", "scripts", name), nil, &script); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &script, nil
}

// workerDeployments accepts both a bare array and the
// {"deployments": [...]} object the API has returned over time
type workerDeployments []WorkerDeployment

func (d *workerDeployments) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, (*[]WorkerDeployment)(d))
	}

	var wrapped struct {
		Deployments []WorkerDeployment `json:"deployments"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("unexpected deployments payload: %w", err)
	}
	*d = wrapped.Deployments
	return nil
}

func (w *WorkersClient) ListDeployments(ctx context.Context, scriptName string) ([]WorkerDeployment, error) {
	var deployments workerDeployments
	if _, err := w.client.Get(ctx, w.client.accountPath("workers", "scripts", scriptName, "deployments"), nil, &deployments); err != nil {
		return nil, err
	}
	return deployments, nil
}

// GetLatestDeployment returns the most recently created deployment, or nil
// when the script has never been deployed.
func (w *WorkersClient) GetLatestDeployment(ctx context.Context, scriptName string) (*WorkerDeployment, error) {
	deployments, err := w.ListDeployments(ctx, scriptName)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return latestBy(deployments, func(d *WorkerDeployment) string { return d.CreatedOn }), nil
}
