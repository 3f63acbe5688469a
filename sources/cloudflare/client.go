package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/healthfees-org/cloudflare-backstage.io/auth"
	"github.com/healthfees-org/cloudflare-backstage.io/logging"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://api.cloudflare.com/client/v4"
	DefaultTimeout     = 15 * time.Second
	DefaultMaxAttempts = 3

	// responses larger than this are cut off rather than buffered
	maxResponseBytes = 32 << 20
)

// Config configures the resilient request client.
type Config struct {
	BaseURL   string
	AccountID string
	APIToken  string

	// Timeout bounds each individual attempt, not the whole call
	Timeout time.Duration
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// RateLimit caps outgoing requests per second, 0 disables limiting
	RateLimit float64

	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Transport is the innermost RoundTripper, http.DefaultTransport if nil
	Transport http.RoundTripper
	// Jitter returns values in [0, 1) used to randomise backoff
	Jitter func() float64
}

// Client issues authenticated calls against the Cloudflare v4 API. It retries
// only when no response was obtained; any response, successful or not, is
// final. It holds no state between calls.
type Client struct {
	accountID string
	baseURL   string
	http      *retryablehttp.Client
}

// ResponseInfo is an entry of the envelope's errors or messages arrays
type ResponseInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ResultInfo carries pagination details when the endpoint is paginated
type ResultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

// Envelope is the standard wrapper around every API response
type Envelope struct {
	Success    bool            `json:"success"`
	Errors     []ResponseInfo  `json:"errors"`
	Messages   []ResponseInfo  `json:"messages"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *ResultInfo     `json:"result_info,omitempty"`
}

// ListOptions are pass-through pagination parameters. Zero values are not
// sent.
type ListOptions struct {
	Page    int
	PerPage int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(o.PerPage))
	}
	return v
}

// NewClient validates the config, fills in defaults and builds the client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccountID == "" {
		return nil, errors.New("cloudflare account id must be set")
	}
	if cfg.APIToken == "" {
		return nil, errors.New("cloudflare api token must be set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	base = &bufferedTransport{base: base}
	if cfg.RateLimit > 0 {
		base = &rateLimitedTransport{
			base:    base,
			limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: auth.NewBearerTransport(cfg.APIToken, base),
		Timeout:   cfg.Timeout,
	}
	rc.RetryMax = cfg.MaxAttempts - 1
	rc.RetryWaitMin = cfg.BackoffBase
	rc.RetryWaitMax = cfg.BackoffMax
	rc.Backoff = jitteredBackoff(cfg.Jitter)
	rc.CheckRetry = retryOnTransportFailure
	rc.ErrorHandler = lastAttemptError
	rc.Logger = logging.NewLeveledLogger(log.WithField("component", "cloudflare-client"))

	return &Client{
		accountID: cfg.AccountID,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		http:      rc,
	}, nil
}

// AccountID returns the account every request is scoped to
func (c *Client) AccountID() string {
	return c.accountID
}

// accountPath builds /accounts/{id}/<elements...> with each element escaped
func (c *Client) accountPath(elements ...string) string {
	escaped := make([]string, 0, len(elements)+2)
	escaped = append(escaped, "accounts", url.PathEscape(c.accountID))
	for _, e := range elements {
		escaped = append(escaped, url.PathEscape(e))
	}
	return "/" + strings.Join(escaped, "/")
}

// retryOnTransportFailure retries only when the attempt produced no response.
// A received response is terminal whatever its status.
func retryOnTransportFailure(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return err != nil, nil
}

// lastAttemptError surfaces the last observed error once retries are
// exhausted, classified as a timeout or transport failure.
func lastAttemptError(resp *http.Response, err error, numTries int) (*http.Response, error) {
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err == nil {
		return nil, fmt.Errorf("cloudflare request failed after %d attempt(s) without a recorded error", numTries)
	}
	return nil, classify(err, numTries)
}

func classify(err error, attempts int) error {
	var tf *TransportFailure
	var to *TimeoutFailure
	if errors.As(err, &tf) || errors.As(err, &to) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutFailure{Attempts: attempts, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &TransportFailure{Attempts: attempts, Err: err}
}

// Request performs one logical API call, which may be several attempts, and
// returns the decoded envelope. path is relative to the base URL and may
// include a query string.
func (c *Client) Request(ctx context.Context, method, path string, body any) (*Envelope, error) {
	// rawBody must stay a nil interface for bodiless requests
	var rawBody interface{}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		rawBody = payload
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, rawBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if rawBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// cancellation while waiting between attempts bypasses the error handler
		return nil, classify(err, 0)
	}
	defer resp.Body.Close()

	// already in memory, see bufferedTransport
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestFailure{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   string(raw),
		}
	}

	var env Envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decoding response from %s %s: %w", method, path, err)
		}
	}

	if !env.Success {
		return nil, &APIFailure{
			Method: method,
			Path:   path,
			Errors: env.Errors,
		}
	}

	return &env, nil
}

// Get issues a GET and decodes the envelope's result into out. A missing or
// null result leaves out untouched.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) (*ResultInfo, error) {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}

	env, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	if out != nil && len(env.Result) > 0 && !bytes.Equal(env.Result, []byte("null")) {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return env.ResultInfo, fmt.Errorf("decoding result of %s: %w", path, err)
		}
	}

	return env.ResultInfo, nil
}

// rateLimitedTransport waits on the limiter before every attempt
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// bufferedTransport reads the whole body before returning the response, so a
// body that stalls past the attempt timeout fails that attempt and is retried
// like any other transport failure.
type bufferedTransport struct {
	base http.RoundTripper
}

func (t *bufferedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(raw))
	resp.ContentLength = int64(len(raw))
	return resp, nil
}
