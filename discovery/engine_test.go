package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/healthfees-org/cloudflare-backstage.io/catalog"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.uber.org/goleak"
)

const testAccount = "acc-123"

func testEngineConfig() *EngineConfig {
	return &EngineConfig{
		EngineType: "cloudflare-discovery",
		Version:    "test",
		Account: AccountIdentity{
			AccountID: testAccount,
			APIToken:  "token",
		},
	}
}

// recordingApplier keeps every mutation it receives
type recordingApplier struct {
	mu        sync.Mutex
	mutations []catalog.Mutation
	err       error
}

func (r *recordingApplier) Apply(_ context.Context, m catalog.Mutation) (catalog.ApplyStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, m)
	if r.err != nil {
		return catalog.ApplyStats{}, r.err
	}
	return catalog.ApplyStats{Added: len(m.Entities)}, nil
}

func (r *recordingApplier) calls() []catalog.Mutation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]catalog.Mutation(nil), r.mutations...)
}

func staticKind[T cloudflare.Resource](kind cloudflare.Kind, bestEffort bool, items ...T) KindSpec {
	return KindSpec{
		Kind:       kind,
		BestEffort: bestEffort,
		List: listOf(func(context.Context) ([]T, error) {
			return items, nil
		}),
	}
}

func failingKind(kind cloudflare.Kind, bestEffort bool, err error) KindSpec {
	return KindSpec{
		Kind:       kind,
		BestEffort: bestEffort,
		List: func(context.Context) ([]cloudflare.Resource, error) {
			return nil, err
		},
	}
}

func newTestEngine(t *testing.T, ec *EngineConfig, kinds []KindSpec, applier catalog.Applier) *Engine {
	t.Helper()
	e, err := NewEngine(ec, kinds, applier)
	if err != nil {
		t.Fatal(err)
	}
	e.SetRunGuard(NewRunGuard())
	return e
}

func entityNames(entities []catalog.Entity) []string {
	names := make([]string, len(entities))
	for i := range entities {
		names[i] = entities[i].Metadata.Name
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fakeCloudflare serves list envelopes for the account and 404 for anything
// it does not know about
type fakeCloudflare struct {
	results map[string]any
}

func (f *fakeCloudflare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	result, ok := f.results[r.URL.Path]
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

func newFakeCloudflare(t *testing.T, results map[string]any) *cloudflare.API {
	t.Helper()

	prefixed := make(map[string]any, len(results))
	for path, result := range results {
		prefixed["/accounts/"+testAccount+path] = result
	}

	server := httptest.NewServer(&fakeCloudflare{results: prefixed})
	t.Cleanup(server.Close)

	api, err := cloudflare.NewAPI(cloudflare.Config{
		BaseURL:     server.URL,
		AccountID:   testAccount,
		APIToken:    "token",
		Timeout:     2 * time.Second,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return api
}

func TestRunEndToEnd(t *testing.T) {
	api := newFakeCloudflare(t, map[string]any{
		"/workers/scripts":       []any{},
		"/pages/projects":        []any{},
		"/storage/kv/namespaces": []any{},
		"/queues":                []any{},
		"/r2/buckets": map[string]any{
			"buckets": []map[string]any{
				{"name": "alpha", "creation_date": "2024-01-01T00:00:00Z"},
				{"name": "Beta!", "creation_date": "2024-02-01T00:00:00Z"},
			},
		},
		"/d1/database": []map[string]any{
			{"uuid": "6f1e2d3c-0000-4000-8000-000000000001", "name": "main"},
		},
	})

	store, err := catalog.NewStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	e := newTestEngine(t, testEngineConfig(), CloudflareKinds(api), store)

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"cf-r2-alpha", "cf-r2-beta", "cf-d1-6f1e2d3c-0000-4000-8000-000000000001"}
	if got := entityNames(result.Entities); !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if e.State() != StateSucceeded {
		t.Errorf("expected state succeeded, got %v", e.State())
	}

	if result.Counts.Len() != len(cloudflare.AllKinds) {
		t.Errorf("expected a count for every kind, got %v", result.Counts.Len())
	}
	if n, _ := result.Counts.Get(cloudflare.KindR2); n != 2 {
		t.Errorf("expected 2 r2 entities, got %v", n)
	}
	if n, _ := result.Counts.Get(cloudflare.KindAIGateway); n != 0 {
		t.Errorf("expected no ai-gateway entities, got %v", n)
	}
	if first := result.Counts.Oldest(); first == nil || first.Key != cloudflare.KindWorker {
		t.Error("expected counts in declaration order")
	}

	if result.Stats.Added != 3 {
		t.Errorf("expected 3 added, got %+v", result.Stats)
	}

	stored, err := store.Entities("cloudflare-entity-provider:" + testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 {
		t.Errorf("expected 3 stored entities, got %v", len(stored))
	}

	locations, err := store.Locations()
	if err != nil {
		t.Fatal(err)
	}
	if len(locations) != 1 || locations[0] != "cloudflare-entity-provider:"+testAccount {
		t.Errorf("expected a single location key, got %v", locations)
	}
}

func TestRunSubmitsOneFullMutation(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions()...)

	applier := &recordingApplier{}
	e := newTestEngine(t, testEngineConfig(), []KindSpec{
		staticKind(cloudflare.KindR2, false, cloudflare.R2Bucket{Name: "alpha"}),
		staticKind(cloudflare.KindD1, false, cloudflare.D1Database{UUID: "u1", Name: "main"}),
	}, applier)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	calls := applier.calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one mutation, got %v", len(calls))
	}
	if calls[0].Type != catalog.MutationFull {
		t.Errorf("expected a full mutation, got %v", calls[0].Type)
	}
	if calls[0].LocationKey != "cloudflare-entity-provider:"+testAccount {
		t.Errorf("unexpected location key %v", calls[0].LocationKey)
	}
	if len(calls[0].Entities) != 2 {
		t.Errorf("expected 2 entities, got %v", len(calls[0].Entities))
	}
}

func TestRunEmptyAccountSubmitsEmptySet(t *testing.T) {
	applier := &recordingApplier{}
	e := newTestEngine(t, testEngineConfig(), []KindSpec{
		staticKind[cloudflare.R2Bucket](cloudflare.KindR2, false),
	}, applier)

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Total() != 0 {
		t.Errorf("expected no entities, got %v", result.Total())
	}

	calls := applier.calls()
	if len(calls) != 1 {
		t.Fatalf("an empty account must still be reconciled, got %v calls", len(calls))
	}
	if calls[0].Entities == nil {
		t.Error("expected an empty, non-nil entity list")
	}
}

func TestRunKindFailures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("core kind fails the run", func(t *testing.T) {
		applier := &recordingApplier{}
		e := newTestEngine(t, testEngineConfig(), []KindSpec{
			failingKind(cloudflare.KindWorker, false, boom),
			staticKind(cloudflare.KindR2, false, cloudflare.R2Bucket{Name: "alpha"}),
		}, applier)

		result, err := e.Run(context.Background())
		if result != nil {
			t.Errorf("expected no result, got %+v", result)
		}

		var failure *KindDiscoveryFailure
		if !errors.As(err, &failure) {
			t.Fatalf("expected a KindDiscoveryFailure, got %v", err)
		}
		if failure.Kind != cloudflare.KindWorker {
			t.Errorf("expected workers to fail, got %v", failure.Kind)
		}
		if !errors.Is(err, boom) {
			t.Errorf("expected the cause to be kept, got %v", err)
		}
		if len(applier.calls()) != 0 {
			t.Error("the catalog must not be touched when a core kind fails")
		}
		if e.State() != StateFailed {
			t.Errorf("expected state failed, got %v", e.State())
		}
		if _, lastErr := e.LastResult(); lastErr == nil {
			t.Error("expected the last error to be kept")
		}
	})

	t.Run("best-effort kind degrades to nothing", func(t *testing.T) {
		applier := &recordingApplier{}
		e := newTestEngine(t, testEngineConfig(), []KindSpec{
			staticKind(cloudflare.KindR2, false, cloudflare.R2Bucket{Name: "alpha"}),
			failingKind(cloudflare.KindAIGateway, true, &cloudflare.RequestFailure{Method: "GET", Path: "/ai-gateway/gateways", Status: 403}),
		}, applier)

		result, err := e.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got := entityNames(result.Entities); !equalStrings(got, []string{"cf-r2-alpha"}) {
			t.Errorf("unexpected entities %v", got)
		}
		if n, ok := result.Counts.Get(cloudflare.KindAIGateway); !ok || n != 0 {
			t.Errorf("expected a zero count for ai-gateway, got %v %v", n, ok)
		}
		if len(applier.calls()) != 1 {
			t.Error("expected the run to be reconciled")
		}
	})

	t.Run("panicking list is a kind failure", func(t *testing.T) {
		applier := &recordingApplier{}
		e := newTestEngine(t, testEngineConfig(), []KindSpec{
			{
				Kind: cloudflare.KindKV,
				List: func(context.Context) ([]cloudflare.Resource, error) {
					panic("unexpected response")
				},
			},
		}, applier)

		_, err := e.Run(context.Background())
		var failure *KindDiscoveryFailure
		if !errors.As(err, &failure) {
			t.Fatalf("expected a KindDiscoveryFailure, got %v", err)
		}
		if len(applier.calls()) != 0 {
			t.Error("the catalog must not be touched")
		}
	})
}

func TestRunSkipsFailedItems(t *testing.T) {
	enrich := func(_ context.Context, r cloudflare.Resource) (cloudflare.Enrichment, error) {
		switch r.Identifier() {
		case "broken":
			return nil, errors.New("deployments unavailable")
		case "explodes":
			panic("nil map")
		case "deployed":
			return &cloudflare.WorkerDeployment{ID: "d-1", CreatedOn: "2024-01-01T00:00:00Z"}, nil
		default:
			return nil, nil
		}
	}

	kind := staticKind(cloudflare.KindWorker, false,
		cloudflare.WorkerScript{ID: "deployed"},
		cloudflare.WorkerScript{ID: "broken"},
		cloudflare.WorkerScript{ID: "explodes"},
		cloudflare.WorkerScript{ID: "plain"},
		cloudflare.WorkerScript{},
	)
	kind.Enrich = enrich

	applier := &recordingApplier{}
	e := newTestEngine(t, testEngineConfig(), []KindSpec{kind}, applier)

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"cf-worker-deployed", "cf-worker-plain"}
	if got := entityNames(result.Entities); !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if result.Skipped != 3 {
		t.Errorf("expected 3 skipped items, got %v", result.Skipped)
	}

	if _, ok := result.Entities[0].Spec.Parameters["lastDeployment"]; !ok {
		t.Error("expected the enrichment on the deployed worker")
	}
	if _, ok := result.Entities[1].Spec.Parameters["lastDeployment"]; ok {
		t.Error("expected no enrichment on the plain worker")
	}
}

func TestRunSkipLogLevels(t *testing.T) {
	hook := logtest.NewGlobal()
	defer log.StandardLogger().ReplaceHooks(make(log.LevelHooks))

	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(level)

	kind := staticKind(cloudflare.KindWorker, false,
		cloudflare.WorkerScript{ID: "broken"},
		cloudflare.WorkerScript{},
	)
	kind.Enrich = func(_ context.Context, r cloudflare.Resource) (cloudflare.Enrichment, error) {
		if r.Identifier() == "broken" {
			return nil, errors.New("deployments unavailable")
		}
		return nil, nil
	}

	e := newTestEngine(t, testEngineConfig(), []KindSpec{kind}, &recordingApplier{})
	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped items, got %v", result.Skipped)
	}

	levels := map[string]log.Level{}
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Skipping resource" {
			levels[entry.Data["cf.identifier"].(string)] = entry.Level
		}
	}

	if got, ok := levels["broken"]; !ok || got != log.WarnLevel {
		t.Errorf("expected the failed enrichment at warn, got %v (logged %v)", got, ok)
	}
	if got, ok := levels[""]; !ok || got != log.DebugLevel {
		t.Errorf("expected the resource without identifier at debug, got %v (logged %v)", got, ok)
	}
}

func TestRunDuplicateNames(t *testing.T) {
	applier := &recordingApplier{}
	e := newTestEngine(t, testEngineConfig(), []KindSpec{
		staticKind(cloudflare.KindR2, false,
			cloudflare.R2Bucket{Name: "Beta!"},
			cloudflare.R2Bucket{Name: "beta"},
			cloudflare.R2Bucket{Name: "gamma"},
		),
	}, applier)

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"cf-r2-beta", "cf-r2-gamma"}
	if got := entityNames(result.Entities); !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if result.Entities[0].Spec.Parameters["bucketName"] != "Beta!" {
		t.Errorf("expected the first resource to win, got %v", result.Entities[0].Spec.Parameters["bucketName"])
	}
	if result.Skipped != 1 {
		t.Errorf("expected 1 skipped item, got %v", result.Skipped)
	}
	if err := applier.calls()[0].Validate(); err != nil {
		t.Errorf("submitted mutation is invalid: %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store, err := catalog.NewStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	kinds := []KindSpec{
		staticKind(cloudflare.KindQueue, false, cloudflare.Queue{QueueName: "events", Producers: []string{"api"}}),
		staticKind(cloudflare.KindKV, false, cloudflare.KVNamespace{ID: "ns1", Title: "config"}, cloudflare.KVNamespace{ID: "ns2", Title: "cache"}),
	}
	e := newTestEngine(t, testEngineConfig(), kinds, store)

	first, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	a, _ := json.Marshal(first.Entities)
	b, _ := json.Marshal(second.Entities)
	if string(a) != string(b) {
		t.Errorf("unchanged account produced different entities:\n%s\n%s", a, b)
	}

	if !second.Stats.NoOp() {
		t.Errorf("expected the second run to be a no-op, got %+v", second.Stats)
	}
	if second.Stats.Unchanged != 3 {
		t.Errorf("expected 3 unchanged entities, got %+v", second.Stats)
	}
	if first.RunID == second.RunID {
		t.Error("expected every run to have its own id")
	}
}

func TestRunRemovesVanishedResources(t *testing.T) {
	store, err := catalog.NewStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	buckets := []cloudflare.R2Bucket{{Name: "alpha"}, {Name: "beta"}}
	kind := KindSpec{
		Kind: cloudflare.KindR2,
		List: listOf(func(context.Context) ([]cloudflare.R2Bucket, error) {
			return buckets, nil
		}),
	}
	e := newTestEngine(t, testEngineConfig(), []KindSpec{kind}, store)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	buckets = buckets[:1]
	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Stats.Removed != 1 {
		t.Errorf("expected the vanished bucket to be removed, got %+v", result.Stats)
	}
}

func TestRunReconciliationFailure(t *testing.T) {
	applier := &recordingApplier{err: errors.New("catalog unavailable")}
	e := newTestEngine(t, testEngineConfig(), []KindSpec{
		staticKind(cloudflare.KindR2, false, cloudflare.R2Bucket{Name: "alpha"}),
	}, applier)

	_, err := e.Run(context.Background())

	var failure *ReconciliationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected a ReconciliationFailure, got %v", err)
	}
	if failure.LocationKey != "cloudflare-entity-provider:"+testAccount {
		t.Errorf("unexpected location key %v", failure.LocationKey)
	}
	if e.State() != StateFailed {
		t.Errorf("expected state failed, got %v", e.State())
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	applier := &recordingApplier{}
	e := newTestEngine(t, testEngineConfig(), []KindSpec{
		{
			Kind: cloudflare.KindR2,
			List: func(ctx context.Context) ([]cloudflare.Resource, error) {
				cancel()
				return []cloudflare.Resource{cloudflare.R2Bucket{Name: "alpha"}}, nil
			},
		},
	}, applier)

	if _, err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected the run to be cancelled, got %v", err)
	}
	if len(applier.calls()) != 0 {
		t.Error("a cancelled run must not reconcile a partial set")
	}
}

func TestRunGuardRejectsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	kind := KindSpec{
		Kind: cloudflare.KindR2,
		List: func(context.Context) ([]cloudflare.Resource, error) {
			close(started)
			<-release
			return nil, nil
		},
	}

	guard := NewRunGuard()
	first := newTestEngine(t, testEngineConfig(), []KindSpec{kind}, &recordingApplier{})
	first.SetRunGuard(guard)
	second := newTestEngine(t, testEngineConfig(), []KindSpec{staticKind[cloudflare.R2Bucket](cloudflare.KindR2, false)}, &recordingApplier{})
	second.SetRunGuard(guard)

	done := make(chan error)
	go func() {
		_, err := first.Run(context.Background())
		done <- err
	}()

	<-started
	if first.State() != StateRunning {
		t.Errorf("expected state running, got %v", first.State())
	}
	if _, err := second.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}

	overlapping := testEngineConfig()
	overlapping.AllowOverlappingRuns = true
	third := newTestEngine(t, overlapping, []KindSpec{staticKind[cloudflare.R2Bucket](cloudflare.KindR2, false)}, &recordingApplier{})
	third.SetRunGuard(guard)
	if _, err := third.Run(context.Background()); err != nil {
		t.Errorf("expected overlapping runs to be allowed, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if guard.Running(testEngineConfig().Account.LocationKey()) {
		t.Error("expected the guard to be released")
	}
	if _, err := second.Run(context.Background()); err != nil {
		t.Errorf("expected a run after the first finished, got %v", err)
	}
}

func TestDisabledKinds(t *testing.T) {
	ec := testEngineConfig()
	ec.DisabledKinds = map[cloudflare.Kind]bool{cloudflare.KindD1: true}

	e := newTestEngine(t, ec, []KindSpec{
		staticKind(cloudflare.KindR2, false, cloudflare.R2Bucket{Name: "alpha"}),
		staticKind(cloudflare.KindD1, false, cloudflare.D1Database{UUID: "u1"}),
	}, &recordingApplier{})

	if kinds := e.Kinds(); len(kinds) != 1 || kinds[0] != cloudflare.KindR2 {
		t.Errorf("expected only r2 to be enabled, got %v", kinds)
	}

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result.Counts.Get(cloudflare.KindD1); ok {
		t.Error("disabled kinds must not be counted")
	}
}

func TestNewEngineValidation(t *testing.T) {
	if _, err := NewEngine(nil, nil, nil); err == nil {
		t.Error("expected an error without config")
	}
	if _, err := NewEngine(&EngineConfig{}, nil, nil); err == nil {
		t.Error("expected an error without account")
	}
	if _, err := NewEngine(testEngineConfig(), []KindSpec{{Kind: "unknown", List: func(context.Context) ([]cloudflare.Resource, error) { return nil, nil }}}, nil); err == nil {
		t.Error("expected an error for a kind without a mapper")
	}
	if _, err := NewEngine(testEngineConfig(), []KindSpec{{Kind: cloudflare.KindR2}}, nil); err == nil {
		t.Error("expected an error for a kind without a list function")
	}
}

func TestCloudflareKindsOrder(t *testing.T) {
	api := cloudflare.NewAPIFromClient(nil)
	kinds := CloudflareKinds(api)

	if len(kinds) != len(cloudflare.AllKinds) {
		t.Fatalf("expected %v kinds, got %v", len(cloudflare.AllKinds), len(kinds))
	}
	for i, k := range kinds {
		if k.Kind != cloudflare.AllKinds[i] {
			t.Errorf("position %v: expected %v, got %v", i, cloudflare.AllKinds[i], k.Kind)
		}
		wantBestEffort := i >= 6
		if k.BestEffort != wantBestEffort {
			t.Errorf("%v: expected best-effort %v", k.Kind, wantBestEffort)
		}
	}
}

func TestAccountLocationKey(t *testing.T) {
	a := AccountIdentity{AccountID: "abc"}
	if a.LocationKey() != "cloudflare-entity-provider:abc" {
		t.Errorf("unexpected location key %v", a.LocationKey())
	}
}

func TestKindFields(t *testing.T) {
	lf := kindFields(cloudflare.KindAIGateway)
	if lf["cf.kind"] != cloudflare.KindAIGateway {
		t.Errorf("unexpected kind field %v", lf["cf.kind"])
	}
	if lf["cf.type"] != "Cloudflare AI Gateway" {
		t.Errorf("unexpected type field %v", lf["cf.type"])
	}
}
