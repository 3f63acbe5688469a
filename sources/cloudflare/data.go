package cloudflare

import (
	"context"
	"net/url"
	"strconv"
)

type D1Client struct {
	client *Client
}

func (d *D1Client) ListDatabases(ctx context.Context) ([]D1Database, error) {
	var databases []D1Database
	if _, err := d.client.Get(ctx, d.client.accountPath("d1", "database"), nil, &databases); err != nil {
		return nil, err
	}
	return databases, nil
}

func (d *D1Client) GetDatabase(ctx context.Context, databaseID string) (*D1Database, error) {
	var database D1Database
	if _, err := d.client.Get(ctx, d.client.accountPath("d1", "database", databaseID), nil, &database); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &database, nil
}

type KVClient struct {
	client *Client
}

func (k *KVClient) ListNamespaces(ctx context.Context) ([]KVNamespace, error) {
	var namespaces []KVNamespace
	if _, err := k.client.Get(ctx, k.client.accountPath("storage", "kv", "namespaces"), nil, &namespaces); err != nil {
		return nil, err
	}
	return namespaces, nil
}

// GetNamespace lists every namespace and filters by id client-side
func (k *KVClient) GetNamespace(ctx context.Context, namespaceID string) (*KVNamespace, error) {
	namespaces, err := k.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	for i := range namespaces {
		if namespaces[i].ID == namespaceID {
			return &namespaces[i], nil
		}
	}
	return nil, nil
}

// ListKeys returns up to limit keys, optionally restricted to a prefix
func (k *KVClient) ListKeys(ctx context.Context, namespaceID string, limit int, prefix string) ([]KVKey, error) {
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if prefix != "" {
		query.Set("prefix", prefix)
	}

	var keys []KVKey
	if _, err := k.client.Get(ctx, k.client.accountPath("storage", "kv", "namespaces", namespaceID, "keys"), query, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

type QueuesClient struct {
	client *Client
}

func (q *QueuesClient) ListQueues(ctx context.Context) ([]Queue, error) {
	var queues []Queue
	if _, err := q.client.Get(ctx, q.client.accountPath("queues"), nil, &queues); err != nil {
		return nil, err
	}
	return queues, nil
}

func (q *QueuesClient) GetQueue(ctx context.Context, name string) (*Queue, error) {
	var queue Queue
	if _, err := q.client.Get(ctx, q.client.accountPath("queues", name), nil, &queue); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &queue, nil
}
