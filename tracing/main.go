package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrAlias/otel-schema-utils/schema"
	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/healthfees-org/cloudflare-backstage.io"

// DefaultHealthCheckSampleRatio keeps one in ten /healthz spans
const DefaultHealthCheckSampleRatio = 0.1

// set at build time, eg:
//
//	go build -ldflags "-X github.com/healthfees-org/cloudflare-backstage.io/tracing.version=$VERSION"
var (
	version = "dev"
	commit  = "none"
)

// Config selects where spans and errors are sent. With neither a honeycomb
// key nor StdoutDump the global no-op provider stays in place.
type Config struct {
	// Component is the service name
	Component string
	// AccountID is recorded as cloud.account.id on every span
	AccountID string

	HoneycombAPIKey string
	SentryDSN       string
	// Environment is reported to sentry, "dev" if empty
	Environment string
	// StdoutDump pretty prints every span to stdout
	StdoutDump bool
	// HealthCheckSampleRatio defaults to DefaultHealthCheckSampleRatio
	HealthCheckSampleRatio float64

	// ExporterOptions are appended to the honeycomb options
	ExporterOptions []otlptracehttp.Option
}

var (
	tp       *sdktrace.TracerProvider
	healthTp *sdktrace.TracerProvider
)

func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion(version),
		trace.WithInstrumentationAttributes(attribute.String("build.commit", commit)),
		trace.WithSchemaURL(semconv.SchemaURL),
	)
}

// HealthCheckTracer traces health probes on their own, sampled, provider so
// they don't drown out discovery runs. Before Init it uses the global one.
func HealthCheckTracer() trace.Tracer {
	var provider trace.TracerProvider = otel.GetTracerProvider()
	if healthTp != nil {
		provider = healthTp
	}
	return provider.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion(version),
		trace.WithSchemaURL(semconv.SchemaURL),
		trace.WithInstrumentationAttributes(attribute.Bool("cf.healthCheck", true)),
	)
}

func tracingResource(cfg Config) (*resource.Resource, error) {
	hostRes, err := resource.New(context.Background(),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
		resource.WithContainer(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("detecting host resource: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.Component),
		semconv.ServiceVersionKey.String(version),
		semconv.CloudProviderKey.String("cloudflare"),
		attribute.String("build.commit", commit),
	}
	if cfg.AccountID != "" {
		attrs = append(attrs, semconv.CloudAccountIDKey.String(cfg.AccountID))
	}
	localRes, err := resource.New(context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("building service resource: %w", err)
	}

	// the SDK's detectors may use a different semconv version than ours
	conv := schema.NewConverter(schema.DefaultClient)
	res, err := conv.MergeResources(context.Background(), semconv.SchemaURL, hostRes, localRes)
	if err != nil {
		return nil, fmt.Errorf("merging resources: %w", err)
	}
	return res, nil
}

// Init configures sentry and, when an upstream is set, the tracer providers
func Init(cfg Config) error {
	if cfg.SentryDSN != "" {
		environment := cfg.Environment
		if environment == "" {
			environment = "dev"
		}
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			AttachStacktrace: true,
			Environment:      environment,
			Release:          version,
		})
		if err != nil {
			log.WithError(err).Error("Could not initialise sentry")
		} else {
			log.Trace("sentry configured")
		}
	}

	var exporters []sdktrace.SpanExporter

	if cfg.HoneycombAPIKey != "" {
		opts := append([]otlptracehttp.Option{
			otlptracehttp.WithEndpoint("api.honeycomb.io"),
			otlptracehttp.WithHeaders(map[string]string{"x-honeycomb-team": cfg.HoneycombAPIKey}),
		}, cfg.ExporterOptions...)

		exp, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
		if err != nil {
			return fmt.Errorf("creating OTLP trace exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}

	if cfg.StdoutDump {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("creating stdout trace exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}

	if len(exporters) == 0 {
		log.Debug("No tracing upstream configured")
		return nil
	}

	res, err := tracingResource(cfg)
	if err != nil {
		// spans are still useful without host attributes
		log.WithError(err).Warn("Could not build tracing resource")
		res = resource.Default()
	}

	ratio := cfg.HealthCheckSampleRatio
	if ratio <= 0 {
		ratio = DefaultHealthCheckSampleRatio
	}

	tp = newProvider(res, exporters, sdktrace.AlwaysSample())
	healthTp = newProvider(res, exporters, sdktrace.TraceIDRatioBased(ratio))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return nil
}

func newProvider(res *resource.Resource, exporters []sdktrace.SpanExporter, sampler sdktrace.Sampler) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}
	for _, exp := range exporters {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// InitTracerWithUpstreams is Init for the common case of a component with
// optional honeycomb and sentry upstreams
func InitTracerWithUpstreams(component, honeycombAPIKey, sentryDSN string) error {
	return Init(Config{
		Component:       component,
		HoneycombAPIKey: honeycombAPIKey,
		SentryDSN:       sentryDSN,
	})
}

// ShutdownTracer flushes sentry and both tracer providers. It waits at most
// five seconds even if ctx is already cancelled.
func ShutdownTracer(ctx context.Context) {
	defer sentry.Flush(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, provider := range []*sdktrace.TracerProvider{tp, healthTp} {
		if provider == nil {
			continue
		}
		if err := errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx)); err != nil {
			log.WithContext(ctx).WithError(err).Error("Could not shut down tracer provider")
		}
	}
	tp, healthTp = nil, nil

	log.WithContext(ctx).Trace("tracing has shut down")
}

// Version returns the version baked into the binary at build time.
func Version() string {
	return version
}
