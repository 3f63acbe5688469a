package cloudflare

import (
	"context"
)

// AIGatewayClient, VectorizeClient and AISearchClient cover endpoints that
// are account gated or in beta. They report failures like any other client;
// deciding whether a failure matters is up to the caller.

type AIGatewayClient struct {
	client *Client
}

func (a *AIGatewayClient) ListGateways(ctx context.Context) ([]AIGateway, error) {
	return listAt[AIGateway](ctx, a.client, nil, "ai-gateway", "gateways")
}

func (a *AIGatewayClient) GetGateway(ctx context.Context, id string) (*AIGateway, error) {
	return getAt[AIGateway](ctx, a.client, "ai-gateway", "gateways", id)
}

type VectorizeClient struct {
	client *Client
}

func (v *VectorizeClient) ListIndexes(ctx context.Context) ([]VectorizeIndex, error) {
	return listAt[VectorizeIndex](ctx, v.client, nil, "vectorize", "indexes")
}

func (v *VectorizeClient) GetIndex(ctx context.Context, name string) (*VectorizeIndex, error) {
	return getAt[VectorizeIndex](ctx, v.client, "vectorize", "indexes", name)
}

type AISearchClient struct {
	client *Client
}

func (a *AISearchClient) ListIndexes(ctx context.Context) ([]AISearchIndex, error) {
	return listAt[AISearchIndex](ctx, a.client, nil, "ai-search", "indexes")
}

func (a *AISearchClient) GetIndex(ctx context.Context, name string) (*AISearchIndex, error) {
	return getAt[AISearchIndex](ctx, a.client, "ai-search", "indexes", name)
}
