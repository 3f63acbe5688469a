package cloudflare

import (
	"context"
)

type R2Client struct {
	client *Client
}

func (r *R2Client) ListBuckets(ctx context.Context) ([]R2Bucket, error) {
	var result struct {
		Buckets []R2Bucket `json:"buckets"`
	}
	if _, err := r.client.Get(ctx, r.client.accountPath("r2", "buckets"), nil, &result); err != nil {
		return nil, err
	}
	return result.Buckets, nil
}

// GetBucket lists all buckets and filters by name, there being no reliable
// by-name endpoint. Returns nil when no bucket matches.
func (r *R2Client) GetBucket(ctx context.Context, name string) (*R2Bucket, error) {
	buckets, err := r.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	for i := range buckets {
		if buckets[i].Name == name {
			return &buckets[i], nil
		}
	}
	return nil, nil
}

// GetLifecycle returns nil when the bucket has no lifecycle configuration
func (r *R2Client) GetLifecycle(ctx context.Context, bucketName string) (*R2Lifecycle, error) {
	var lifecycle R2Lifecycle
	if _, err := r.client.Get(ctx, r.client.accountPath("r2", "buckets", bucketName, "lifecycle"), nil, &lifecycle); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(lifecycle.Rules) == 0 {
		return nil, nil
	}
	return &lifecycle, nil
}
