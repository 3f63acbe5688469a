package cloudflare

import (
	"context"
	"net/url"
)

// listAt fetches the account scoped collection at elements
func listAt[T any](ctx context.Context, c *Client, query url.Values, elements ...string) ([]T, error) {
	var items []T
	if _, err := c.Get(ctx, c.accountPath(elements...), query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// getAt fetches a single account scoped object, returning nil on 404
func getAt[T any](ctx context.Context, c *Client, elements ...string) (*T, error) {
	var item T
	if _, err := c.Get(ctx, c.accountPath(elements...), nil, &item); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}
