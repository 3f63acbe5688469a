package cloudflare

import (
	"context"
	"fmt"
)

// TokenStatus is the result of verifying the API token
type TokenStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	NotBefore string `json:"not_before,omitempty"`
	ExpiresOn string `json:"expires_on,omitempty"`
}

// VerifyToken checks that the configured token is valid for the account. An
// inactive token is reported as an error.
func (c *Client) VerifyToken(ctx context.Context) (*TokenStatus, error) {
	var status TokenStatus
	if _, err := c.Get(ctx, c.accountPath("tokens", "verify"), nil, &status); err != nil {
		return nil, err
	}
	if status.Status != "active" {
		return &status, fmt.Errorf("cloudflare api token %v is %q, not active", status.ID, status.Status)
	}
	return &status, nil
}
