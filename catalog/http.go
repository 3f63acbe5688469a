package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/healthfees-org/cloudflare-backstage.io/auth"
	"github.com/healthfees-org/cloudflare-backstage.io/logging"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxReplyBytes bounds how much of a catalog reply is read
const maxReplyBytes = 1 << 20

// HTTPSinkOptions configures an HTTPSink
type HTTPSinkOptions struct {
	// Token is sent as a bearer token when set
	Token   string
	Timeout time.Duration
	// Retries is the number of retries after the first attempt. Full
	// mutations are idempotent so 5xx and 429 responses are retried.
	Retries   int
	Transport http.RoundTripper
}

// HTTPSink POSTs mutations as JSON to a catalog endpoint
type HTTPSink struct {
	url        string
	httpClient *retryablehttp.Client
}

func NewHTTPSink(url string, opts HTTPSinkOptions) *HTTPSink {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	var transport http.RoundTripper
	if opts.Token != "" {
		transport = auth.NewBearerTransport(opts.Token, base)
	} else {
		transport = otelhttp.NewTransport(base)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	httpClient := retryablehttp.NewClient()
	httpClient.HTTPClient = &http.Client{Transport: transport, Timeout: opts.Timeout}
	httpClient.RetryWaitMin = 500 * time.Millisecond
	httpClient.RetryWaitMax = 10 * time.Second
	httpClient.RetryMax = opts.Retries
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.Logger = logging.NewLeveledLogger(log.WithField("component", "catalog-http-sink"))

	return &HTTPSink{url: url, httpClient: httpClient}
}

// Apply sends m and reports the stats from the catalog's reply, if it sent
// any. A non-2xx response is an error.
func (s *HTTPSink) Apply(ctx context.Context, m Mutation) (ApplyStats, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return ApplyStats{}, fmt.Errorf("encoding mutation: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return ApplyStats{}, fmt.Errorf("failed to create a new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ApplyStats{}, fmt.Errorf("failed to send mutation to %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return ApplyStats{}, fmt.Errorf("reading catalog reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ApplyStats{}, fmt.Errorf("catalog at %s rejected mutation, status: %s, body: %s", s.url, resp.Status, bytes.TrimSpace(raw))
	}

	var reply Reply
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &reply) != nil {
		// catalogs that answer without a body give no stats
		return ApplyStats{}, nil
	}
	if !reply.OK && reply.Error != "" {
		return reply.Stats, fmt.Errorf("catalog at %s rejected mutation: %s", s.url, reply.Error)
	}

	return reply.Stats, nil
}

// NewHandler returns a handler that applies POSTed mutations to a and
// answers with a Reply
func NewHandler(a Applier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var m Mutation
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<20)).Decode(&m); err != nil {
			writeReply(w, http.StatusBadRequest, Reply{Error: fmt.Sprintf("decoding mutation: %v", err)})
			return
		}
		if err := m.Validate(); err != nil {
			writeReply(w, http.StatusBadRequest, Reply{Error: err.Error()})
			return
		}

		stats, err := a.Apply(r.Context(), m)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, context.Canceled) {
				status = http.StatusServiceUnavailable
			}
			writeReply(w, status, Reply{Error: err.Error(), Stats: stats})
			return
		}

		writeReply(w, http.StatusOK, Reply{OK: true, Stats: stats})
	})
}

func writeReply(w http.ResponseWriter, status int, reply Reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		log.WithError(err).Error("Failed to write catalog reply")
	}
}
