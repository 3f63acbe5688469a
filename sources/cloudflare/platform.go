package cloudflare

import (
	"context"
)

type DurableObjectsClient struct {
	client *Client
}

func (d *DurableObjectsClient) ListNamespaces(ctx context.Context) ([]DurableObjectNamespace, error) {
	return listAt[DurableObjectNamespace](ctx, d.client, nil, "workers", "durable_objects", "namespaces")
}

type HyperdriveClient struct {
	client *Client
}

func (h *HyperdriveClient) ListConfigs(ctx context.Context) ([]HyperdriveConfig, error) {
	return listAt[HyperdriveConfig](ctx, h.client, nil, "hyperdrive", "configs")
}

func (h *HyperdriveClient) GetConfig(ctx context.Context, id string) (*HyperdriveConfig, error) {
	return getAt[HyperdriveConfig](ctx, h.client, "hyperdrive", "configs", id)
}

type ContainersClient struct {
	client *Client
}

func (c *ContainersClient) ListApplications(ctx context.Context) ([]ContainerApp, error) {
	return listAt[ContainerApp](ctx, c.client, nil, "workers", "containers")
}

type SecretsStoreClient struct {
	client *Client
}

func (s *SecretsStoreClient) ListStores(ctx context.Context) ([]SecretsStore, error) {
	return listAt[SecretsStore](ctx, s.client, nil, "workers", "secrets")
}

type AnalyticsEngineClient struct {
	client *Client
}

func (a *AnalyticsEngineClient) ListDatasets(ctx context.Context) ([]AnalyticsDataset, error) {
	return listAt[AnalyticsDataset](ctx, a.client, nil, "analytics_engine", "datasets")
}

type BrowserRenderingClient struct {
	client *Client
}

// GetQuotas returns nil when browser rendering is not enabled on the account
func (b *BrowserRenderingClient) GetQuotas(ctx context.Context) (*BrowserRenderingQuota, error) {
	return getAt[BrowserRenderingQuota](ctx, b.client, "browser-rendering", "quotas")
}
