package cloudflare

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testAccount = "acc-123"

// fakeAPI serves canned envelopes keyed by request path
type fakeAPI struct {
	t       *testing.T
	mu      sync.Mutex
	results map[string]any
	status  map[string]int
	queries map[string]string
	hits    map[string]int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t:       t,
		results: map[string]any{},
		status:  map[string]int{},
		queries: map[string]string{},
		hits:    map[string]int{},
	}
}

func (f *fakeAPI) on(path string, result any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results["/accounts/"+testAccount+path] = result
}

func (f *fakeAPI) fail(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status["/accounts/"+testAccount+path] = status
}

func (f *fakeAPI) query(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries["/accounts/"+testAccount+path]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.queries[r.URL.Path] = r.URL.RawQuery
	status, failing := f.status[r.URL.Path]
	result, ok := f.results[r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if failing {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"errors":  []map[string]any{{"code": status, "message": http.StatusText(status)}},
		})
		return
	}

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"errors":  []map[string]any{{"code": 10000, "message": "not found"}},
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"errors":   []any{},
		"messages": []any{},
		"result":   result,
	})
}

func (f *fakeAPI) newAPI() *API {
	server := httptest.NewServer(f)
	f.t.Cleanup(server.Close)

	api, err := NewAPI(Config{
		BaseURL:     server.URL,
		AccountID:   testAccount,
		APIToken:    "token",
		Timeout:     2 * time.Second,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return api
}

// flakyTransport fails the first `failures` round trips without a response
type flakyTransport struct {
	failures int32
	calls    atomic.Int32
	base     http.RoundTripper
}

var errConnectionReset = errors.New("connection reset by peer")

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)
	if f.failures < 0 || n <= f.failures {
		return nil, errConnectionReset
	}
	base := f.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
