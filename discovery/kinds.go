package discovery

import (
	"context"

	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
)

// ListFunc lists every resource of one kind
type ListFunc func(ctx context.Context) ([]cloudflare.Resource, error)

// EnrichFunc looks up the enrichment record of one resource. A nil record
// with a nil error means there is nothing to add.
type EnrichFunc func(ctx context.Context, r cloudflare.Resource) (cloudflare.Enrichment, error)

// KindSpec describes how to discover one kind
type KindSpec struct {
	Kind cloudflare.Kind
	// BestEffort kinds degrade to no entities when listing fails, the
	// others fail the run
	BestEffort bool
	List       ListFunc
	// Enrich is optional
	Enrich EnrichFunc
}

func listOf[T cloudflare.Resource](fn func(context.Context) ([]T, error)) ListFunc {
	return func(ctx context.Context) ([]cloudflare.Resource, error) {
		items, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		resources := make([]cloudflare.Resource, len(items))
		for i := range items {
			resources[i] = items[i]
		}
		return resources, nil
	}
}

// enrichByIdentifier adapts a getLatest style lookup keyed by the resource's
// identifier. A nil record becomes a nil Enrichment.
func enrichByIdentifier[T any, PT interface {
	*T
	cloudflare.Enrichment
}](fn func(context.Context, string) (*T, error)) EnrichFunc {
	return func(ctx context.Context, r cloudflare.Resource) (cloudflare.Enrichment, error) {
		record, err := fn(ctx, r.Identifier())
		if err != nil || record == nil {
			return nil, err
		}
		return PT(record), nil
	}
}

// CloudflareKinds returns every kind in declaration order. The first six are
// core kinds.
func CloudflareKinds(api *cloudflare.API) []KindSpec {
	return []KindSpec{
		{
			Kind:   cloudflare.KindWorker,
			List:   listOf(api.Workers.ListScripts),
			Enrich: enrichByIdentifier(api.Workers.GetLatestDeployment),
		},
		{
			Kind:   cloudflare.KindPages,
			List:   listOf(api.Pages.ListProjects),
			Enrich: enrichByIdentifier(api.Pages.GetLatestProductionDeployment),
		},
		{
			Kind:   cloudflare.KindR2,
			List:   listOf(api.R2.ListBuckets),
			Enrich: enrichByIdentifier(api.R2.GetLifecycle),
		},
		{Kind: cloudflare.KindD1, List: listOf(api.D1.ListDatabases)},
		{Kind: cloudflare.KindKV, List: listOf(api.KV.ListNamespaces)},
		{Kind: cloudflare.KindQueue, List: listOf(api.Queues.ListQueues)},
		{Kind: cloudflare.KindAIGateway, BestEffort: true, List: listOf(api.AIGateway.ListGateways)},
		{Kind: cloudflare.KindVectorize, BestEffort: true, List: listOf(api.Vectorize.ListIndexes)},
		{
			Kind:       cloudflare.KindWorkflow,
			BestEffort: true,
			List:       listOf(api.Workflows.ListWorkflows),
			Enrich:     enrichByIdentifier(api.Workflows.GetLatestRun),
		},
		{Kind: cloudflare.KindDurableObject, BestEffort: true, List: listOf(api.DurableObjects.ListNamespaces)},
		{Kind: cloudflare.KindAISearch, BestEffort: true, List: listOf(api.AISearch.ListIndexes)},
		{Kind: cloudflare.KindHyperdrive, BestEffort: true, List: listOf(api.Hyperdrive.ListConfigs)},
		{Kind: cloudflare.KindContainer, BestEffort: true, List: listOf(api.Containers.ListApplications)},
		{Kind: cloudflare.KindSecretsStore, BestEffort: true, List: listOf(api.SecretsStore.ListStores)},
		{Kind: cloudflare.KindAnalyticsEngine, BestEffort: true, List: listOf(api.AnalyticsEngine.ListDatasets)},
	}
}
