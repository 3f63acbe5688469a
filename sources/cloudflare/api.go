// Package cloudflare talks to the Cloudflare v4 API. Client handles
// authentication, time-boxing and retries; the per-kind clients in this
// package know the list and get endpoints of each resource kind and share a
// single Client.
package cloudflare

// API groups the per-kind clients of one account
type API struct {
	Client *Client

	Workers          *WorkersClient
	Pages            *PagesClient
	R2               *R2Client
	D1               *D1Client
	KV               *KVClient
	Queues           *QueuesClient
	AIGateway        *AIGatewayClient
	Vectorize        *VectorizeClient
	Workflows        *WorkflowsClient
	DurableObjects   *DurableObjectsClient
	AISearch         *AISearchClient
	Hyperdrive       *HyperdriveClient
	Containers       *ContainersClient
	SecretsStore     *SecretsStoreClient
	AnalyticsEngine  *AnalyticsEngineClient
	BrowserRendering *BrowserRenderingClient
	ZeroTrust        *ZeroTrustClient
}

// NewAPI builds a Client from cfg and wires every per-kind client to it
func NewAPI(cfg Config) (*API, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewAPIFromClient(c), nil
}

func NewAPIFromClient(c *Client) *API {
	return &API{
		Client:           c,
		Workers:          &WorkersClient{client: c},
		Pages:            &PagesClient{client: c},
		R2:               &R2Client{client: c},
		D1:               &D1Client{client: c},
		KV:               &KVClient{client: c},
		Queues:           &QueuesClient{client: c},
		AIGateway:        &AIGatewayClient{client: c},
		Vectorize:        &VectorizeClient{client: c},
		Workflows:        &WorkflowsClient{client: c},
		DurableObjects:   &DurableObjectsClient{client: c},
		AISearch:         &AISearchClient{client: c},
		Hyperdrive:       &HyperdriveClient{client: c},
		Containers:       &ContainersClient{client: c},
		SecretsStore:     &SecretsStoreClient{client: c},
		AnalyticsEngine:  &AnalyticsEngineClient{client: c},
		BrowserRendering: &BrowserRenderingClient{client: c},
		ZeroTrust:        &ZeroTrustClient{client: c},
	}
}
