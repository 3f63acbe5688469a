package cloudflare

import (
	"context"
	"net/url"
	"strconv"
)

// AuditLogQuery filters the account audit log. Empty fields are not sent.
type AuditLogQuery struct {
	ActorEmail string
	ActionType string
	ResourceID string
	Since      string
	Before     string
	Page       int
	PerPage    int
}

func (q AuditLogQuery) values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("actor.email", q.ActorEmail)
	set("action.type", q.ActionType)
	set("resource.id", q.ResourceID)
	set("since", q.Since)
	set("before", q.Before)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}

type ZeroTrustClient struct {
	client *Client
}

func (z *ZeroTrustClient) ListAuditLogs(ctx context.Context, query AuditLogQuery) ([]AuditLog, error) {
	return listAt[AuditLog](ctx, z.client, query.values(), "audit_logs")
}

// ListAccessUsers returns Access users, optionally bounded in time
func (z *ZeroTrustClient) ListAccessUsers(ctx context.Context, since, before string) ([]AccessUser, error) {
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	if before != "" {
		query.Set("before", before)
	}
	return listAt[AccessUser](ctx, z.client, query, "access", "users")
}
