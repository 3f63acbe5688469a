package discovery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/healthfees-org/cloudflare-backstage.io/auth"
	"github.com/healthfees-org/cloudflare-backstage.io/catalog"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare/mappers"
	"github.com/healthfees-org/cloudflare-backstage.io/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// ProviderName prefixes every location key this engine reconciles
const ProviderName = "cloudflare-entity-provider"

// DefaultMaxParallel bounds concurrent enrichment requests across all kinds
const DefaultMaxParallel = 8

// AccountIdentity is the Cloudflare account a run discovers
type AccountIdentity struct {
	AccountID string
	APIToken  string
}

// LocationKey is the catalog key that all of the account's entities are
// reconciled under
func (a AccountIdentity) LocationKey() string {
	return catalog.LocationKey(ProviderName, a.AccountID)
}

// Sink names
const (
	SinkHTTP = "http"
	SinkNATS = "nats"
	SinkBolt = "bolt"
	// SinkStdout prints the mutation instead of delivering it
	SinkStdout = "stdout"
)

type EngineConfig struct {
	EngineType string // The type of the engine e.g. cloudflare-discovery
	Version    string // The version of the engine
	SourceName string // normally follows "$EngineType-$hostname"

	Account AccountIdentity

	Owner  string // owner of every entity, defaults to "unknown"
	System string // optional system of every entity

	DisabledKinds        map[cloudflare.Kind]bool // kinds that are not discovered
	MaxParallel          int                      // concurrent enrichment requests, across kinds
	AllowOverlappingRuns bool                     // skip the per-account run guard

	// Cloudflare client tuning
	APIBaseURL     string
	RequestTimeout time.Duration
	MaxAttempts    int
	RateLimit      float64
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	VerifyRetries  int // retries of the startup token check

	ScheduleFrequency time.Duration
	ScheduleTimeout   time.Duration

	// Catalog sink
	CatalogSink    string // http, nats, bolt or stdout
	CatalogFormat  string // json or yaml, for the stdout sink
	CatalogURL     string
	CatalogToken   string
	CatalogSubject string
	CatalogPath    string
	CatalogTimeout time.Duration

	NATSOptions *auth.NATSOptions // Options for connecting to NATS
}

// CloudflareConfig returns the request client settings for the account
func (ec *EngineConfig) CloudflareConfig() cloudflare.Config {
	return cloudflare.Config{
		BaseURL:     ec.APIBaseURL,
		AccountID:   ec.Account.AccountID,
		APIToken:    ec.Account.APIToken,
		Timeout:     ec.RequestTimeout,
		MaxAttempts: ec.MaxAttempts,
		RateLimit:   ec.RateLimit,
		BackoffBase: ec.BackoffBase,
		BackoffMax:  ec.BackoffMax,
	}
}

func (ec *EngineConfig) maxParallel() int {
	if ec.MaxParallel <= 0 {
		return DefaultMaxParallel
	}
	return ec.MaxParallel
}

// Engine discovers every enabled kind of one account and reconciles the
// result with the catalog
type Engine struct {
	EngineConfig *EngineConfig

	// Recorder is optional
	Recorder *Recorder

	kinds      []KindSpec
	reconciler *Reconciler
	guard      *RunGuard
	mapConfig  mappers.Config

	stateMutex sync.RWMutex
	state      State
	lastResult *RunResult
	lastError  error

	// Stores any error that prevented the engine from starting, such as a
	// token that failed verification
	initError      error
	initErrorMutex sync.RWMutex
}

// NewEngine builds an engine over kinds, leaving out those disabled in ec.
// Every kind must have a mapper.
func NewEngine(ec *EngineConfig, kinds []KindSpec, applier catalog.Applier) (*Engine, error) {
	if ec == nil {
		return nil, fmt.Errorf("engine config is required")
	}
	if ec.Account.AccountID == "" {
		return nil, fmt.Errorf("cloudflare account id is required")
	}

	enabled := make([]KindSpec, 0, len(kinds))
	for _, k := range kinds {
		if !mappers.Has(k.Kind) {
			return nil, fmt.Errorf("no mapper for kind %v", k.Kind)
		}
		if k.List == nil {
			return nil, fmt.Errorf("kind %v has no list function", k.Kind)
		}
		if ec.DisabledKinds[k.Kind] {
			continue
		}
		enabled = append(enabled, k)
	}

	return &Engine{
		EngineConfig: ec,
		kinds:        enabled,
		reconciler:   &Reconciler{Applier: applier},
		guard:        defaultRunGuard,
		mapConfig: mappers.Config{
			AccountID:     ec.Account.AccountID,
			DefaultOwner:  ec.Owner,
			DefaultSystem: ec.System,
		},
	}, nil
}

// SetRunGuard replaces the process wide run guard
func (e *Engine) SetRunGuard(g *RunGuard) {
	e.guard = g
}

// Kinds returns the enabled kinds in declaration order
func (e *Engine) Kinds() []cloudflare.Kind {
	kinds := make([]cloudflare.Kind, len(e.kinds))
	for i, k := range e.kinds {
		kinds[i] = k.Kind
	}
	return kinds
}

func (e *Engine) State() State {
	e.stateMutex.RLock()
	defer e.stateMutex.RUnlock()
	return e.state
}

// LastResult returns the result and error of the last finished run
func (e *Engine) LastResult() (*RunResult, error) {
	e.stateMutex.RLock()
	defer e.stateMutex.RUnlock()
	return e.lastResult, e.lastError
}

func (e *Engine) setState(s State, result *RunResult, err error) {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	e.state = s
	if s == StateSucceeded || s == StateFailed {
		e.lastResult = result
		e.lastError = err
	}
}

// SetInitError stores an initialization error so that health checks report
// it. Passing nil clears it.
func (e *Engine) SetInitError(err error) {
	e.initErrorMutex.Lock()
	defer e.initErrorMutex.Unlock()
	e.initError = err
}

func (e *Engine) GetInitError() error {
	e.initErrorMutex.RLock()
	defer e.initErrorMutex.RUnlock()
	return e.initError
}

// HealthCheck reports the initialization error if there is one. Failed runs
// do not make the engine unhealthy since the next run may succeed.
func (e *Engine) HealthCheck(ctx context.Context) error {
	_, span := tracing.HealthCheckTracer().Start(ctx, "Engine.HealthCheck", trace.WithAttributes(
		attribute.String("cf.engine.state", e.State().String()),
	))
	defer span.End()

	if err := e.GetInitError(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("engine failed to initialize: %w", err)
	}
	return nil
}

// Run performs one full discovery run: every enabled kind is listed,
// enriched and mapped, and the resulting entity set replaces what the
// catalog holds for the account. A core kind that cannot be listed fails the
// run before anything is submitted.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	locationKey := e.EngineConfig.Account.LocationKey()

	if !e.EngineConfig.AllowOverlappingRuns {
		if !e.guard.TryLock(locationKey) {
			e.Recorder.RecordOverlap()
			return nil, ErrRunInProgress
		}
		defer e.guard.Unlock(locationKey)
	}

	result := &RunResult{
		RunID:     uuid.New(),
		Counts:    orderedmap.New[cloudflare.Kind, int](),
		StartedAt: time.Now(),
	}

	ctx, span := tracing.Tracer().Start(ctx, "Engine.Run", trace.WithAttributes(
		attribute.String("cf.run.id", result.RunID.String()),
		attribute.String("cf.run.locationKey", locationKey),
		attribute.Int("cf.run.kinds", len(e.kinds)),
	))
	defer span.End()

	lf := log.Fields{
		"cf.run.id":          result.RunID.String(),
		"cf.run.locationKey": locationKey,
	}

	e.setState(StateRunning, nil, nil)
	before := tracing.ReadMemoryStats()

	err := e.run(ctx, result, lf)

	result.Duration = time.Since(result.StartedAt)
	tracing.SetMemoryDeltaAttributes(span, "cf.run", before, tracing.ReadMemoryStats())
	span.SetAttributes(
		attribute.Int("cf.run.entities", result.Total()),
		attribute.Int("cf.run.skipped", result.Skipped),
		attribute.Float64("cf.run.durationSeconds", result.Duration.Seconds()),
	)
	e.Recorder.RecordRun(result, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		sentry.CaptureException(err)
		log.WithContext(ctx).WithError(err).WithFields(lf).WithField("cf.run.duration", result.Duration.String()).Error("Discovery run failed")
		e.setState(StateFailed, nil, err)
		return nil, err
	}

	e.setState(StateSucceeded, result, nil)
	return result, nil
}

func (e *Engine) run(ctx context.Context, result *RunResult, lf log.Fields) error {
	perKind, err := e.discover(ctx)
	if err != nil {
		return err
	}

	// a deadline that fired during enrichment leaves holes in the set, which
	// would delete real entities from the catalog
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("discovery run interrupted: %w", err)
	}

	e.collect(ctx, perKind, result)

	log.WithContext(ctx).WithFields(lf).WithFields(result.LogFields()).WithField("skipped", result.Skipped).Info("Discovered entities")

	stats, err := e.reconciler.Reconcile(ctx, result.Entities, e.EngineConfig.Account.LocationKey())
	if err != nil {
		return err
	}
	result.Stats = stats

	log.WithContext(ctx).WithFields(lf).WithFields(result.LogFields()).WithFields(log.Fields{
		"added":     stats.Added,
		"updated":   stats.Updated,
		"removed":   stats.Removed,
		"unchanged": stats.Unchanged,
		"rejected":  stats.Rejected,
	}).Info("Reconciled entities")

	return nil
}

// kindOutcome is what discovering one kind produced. Slots are nil where an
// item was skipped.
type kindOutcome struct {
	entities []*catalog.Entity
}

// discover lists every kind concurrently. Each kind writes only its own slot
// so the result order is the declaration order regardless of timing.
func (e *Engine) discover(ctx context.Context) ([]kindOutcome, error) {
	outcomes := make([]kindOutcome, len(e.kinds))
	sem := semaphore.NewWeighted(int64(e.EngineConfig.maxParallel()))

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()

	for i, spec := range e.kinds {
		p.Go(func(ctx context.Context) (err error) {
			defer func() {
				if v := recover(); v != nil {
					log.WithContext(ctx).WithField("stack", string(debug.Stack())).WithField("cf.kind", spec.Kind).Error("Recovered panic while discovering kind")
					err = kindFailed(ctx, spec, &panicError{value: v})
				}
			}()

			out, err := e.discoverKind(ctx, spec, sem)
			if err != nil {
				return kindFailed(ctx, spec, err)
			}
			outcomes[i] = out
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	return outcomes, nil
}

// kindFields identifies kind in log lines
func kindFields(kind cloudflare.Kind) log.Fields {
	lf := log.Fields{"cf.kind": kind}
	if it, ok := mappers.Type(kind); ok {
		lf["cf.type"] = it.Readable()
	}
	return lf
}

// kindFailed degrades a best-effort kind to zero entities. Any other kind
// fails the run.
func kindFailed(ctx context.Context, spec KindSpec, err error) error {
	if spec.BestEffort {
		log.WithContext(ctx).WithError(err).WithFields(kindFields(spec.Kind)).Warn("Could not discover optional kind, continuing without it")
		return nil
	}
	return &KindDiscoveryFailure{Kind: spec.Kind, Err: err}
}

func (e *Engine) discoverKind(ctx context.Context, spec KindSpec, sem *semaphore.Weighted) (kindOutcome, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Engine.discoverKind", trace.WithAttributes(
		attribute.String("cf.kind", string(spec.Kind)),
		attribute.Bool("cf.kind.bestEffort", spec.BestEffort),
	))
	defer span.End()

	resources, err := spec.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return kindOutcome{}, err
	}
	span.SetAttributes(attribute.Int("cf.kind.resources", len(resources)))

	entities := make([]*catalog.Entity, len(resources))
	p := pool.New().WithMaxGoroutines(e.EngineConfig.maxParallel())

	for i, r := range resources {
		p.Go(func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			entity, err := e.processItem(ctx, spec, r)
			if err != nil {
				entry := log.WithContext(ctx).WithError(err).WithFields(kindFields(spec.Kind)).WithField("cf.identifier", r.Identifier())
				if errors.Is(err, errUnmappable) {
					entry.Debug("Skipping resource")
				} else {
					entry.Warn("Skipping resource")
				}
				return
			}
			entities[i] = entity
		})
	}
	p.Wait()

	return kindOutcome{entities: entities}, nil
}

// processItem enriches and maps one resource. A panic anywhere in here skips
// the item instead of taking down the run.
func (e *Engine) processItem(ctx context.Context, spec KindSpec, r cloudflare.Resource) (entity *catalog.Entity, err error) {
	defer func() {
		if v := recover(); v != nil {
			entity = nil
			err = &panicError{value: v}
			log.WithContext(ctx).WithField("stack", string(debug.Stack())).WithField("cf.kind", spec.Kind).Error("Recovered panic while processing resource")
		}
	}()

	var enrichment cloudflare.Enrichment
	if spec.Enrich != nil {
		enrichment, err = spec.Enrich(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("enriching %v %q: %w", spec.Kind, r.Identifier(), err)
		}
	}

	entity, err = mappers.Map(e.mapConfig, r, enrichment)
	if err != nil {
		return nil, fmt.Errorf("mapping %v %q: %w", spec.Kind, r.Identifier(), err)
	}
	if entity == nil {
		return nil, fmt.Errorf("%v: %w", spec.Kind, errUnmappable)
	}
	return entity, nil
}

// collect flattens the per-kind outcomes into the result in declaration
// order. When two resources derive the same name the first one wins.
func (e *Engine) collect(ctx context.Context, outcomes []kindOutcome, result *RunResult) {
	seen := make(map[string]cloudflare.Kind)
	result.Entities = make([]catalog.Entity, 0)

	for i, spec := range e.kinds {
		count := 0
		for _, entity := range outcomes[i].entities {
			if entity == nil {
				result.Skipped++
				e.Recorder.RecordSkip(string(spec.Kind))
				continue
			}

			if first, ok := seen[entity.Metadata.Name]; ok {
				log.WithContext(ctx).WithFields(log.Fields{
					"cf.kind":      spec.Kind,
					"cf.firstKind": first,
					"cf.name":      entity.Metadata.Name,
				}).Warn("Skipping resource with duplicate entity name")
				result.Skipped++
				e.Recorder.RecordSkip(string(spec.Kind))
				continue
			}

			seen[entity.Metadata.Name] = spec.Kind
			result.Entities = append(result.Entities, *entity)
			count++
		}
		result.Counts.Set(spec.Kind, count)
	}
}
