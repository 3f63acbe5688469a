package cloudflare

import (
	"context"
)

const productionEnvironment = "production"

// latestDeploymentWindow is how many recent deployments are inspected when
// looking for the latest production one
const latestDeploymentWindow = 10

type PagesClient struct {
	client *Client
}

func (p *PagesClient) ListProjects(ctx context.Context) ([]PagesProject, error) {
	var projects []PagesProject
	if _, err := p.client.Get(ctx, p.client.accountPath("pages", "projects"), nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (p *PagesClient) GetProject(ctx context.Context, name string) (*PagesProject, error) {
	var project PagesProject
	if _, err := p.client.Get(ctx, p.client.accountPath("pages", "projects", name), nil, &project); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

// ListDeployments returns a single page of deployments. Pagination is not
// followed.
func (p *PagesClient) ListDeployments(ctx context.Context, projectName string, opts ListOptions) ([]PagesDeployment, *ResultInfo, error) {
	var deployments []PagesDeployment
	info, err := p.client.Get(ctx, p.client.accountPath("pages", "projects", projectName, "deployments"), opts.values(), &deployments)
	if err != nil {
		return nil, nil, err
	}
	return deployments, info, nil
}

func (p *PagesClient) GetDeployment(ctx context.Context, projectName, deploymentID string) (*PagesDeployment, error) {
	var deployment PagesDeployment
	if _, err := p.client.Get(ctx, p.client.accountPath("pages", "projects", projectName, "deployments", deploymentID), nil, &deployment); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &deployment, nil
}

// GetLatestProductionDeployment looks at the first page of deployments only
// and returns the newest one in the production environment, or nil.
func (p *PagesClient) GetLatestProductionDeployment(ctx context.Context, projectName string) (*PagesDeployment, error) {
	deployments, _, err := p.ListDeployments(ctx, projectName, ListOptions{Page: 1, PerPage: latestDeploymentWindow})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	production := make([]PagesDeployment, 0, len(deployments))
	for _, d := range deployments {
		if d.Environment == productionEnvironment {
			production = append(production, d)
		}
	}

	return latestBy(production, func(d *PagesDeployment) string { return d.CreatedOn }), nil
}
