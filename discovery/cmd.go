package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/healthfees-org/cloudflare-backstage.io/auth"
	"github.com/healthfees-org/cloudflare-backstage.io/catalog"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func AddEngineFlags(command *cobra.Command) {
	command.PersistentFlags().String("source-name", "", "The name of the source, defaults to $ENGINE_TYPE-$HOSTNAME")
	cobra.CheckErr(viper.BindEnv("source-name", "SOURCE_NAME"))

	command.PersistentFlags().String("account-id", "", "The Cloudflare account to discover")
	cobra.CheckErr(viper.BindEnv("account-id", "CLOUDFLARE_ACCOUNT_ID"))
	command.PersistentFlags().String("api-token", "", "The Cloudflare API token, needs read access to every discovered kind")
	cobra.CheckErr(viper.BindEnv("api-token", "CLOUDFLARE_API_TOKEN"))
	command.PersistentFlags().String("api-base-url", cloudflare.DefaultBaseURL, "The base URL of the Cloudflare API")
	cobra.CheckErr(viper.BindEnv("api-base-url", "CLOUDFLARE_API_BASE_URL"))

	command.PersistentFlags().String("owner", "unknown", "The owner of every discovered entity")
	cobra.CheckErr(viper.BindEnv("owner", "CATALOG_OWNER"))
	command.PersistentFlags().String("system", "", "The system every discovered entity belongs to, if any")
	cobra.CheckErr(viper.BindEnv("system", "CATALOG_SYSTEM"))
	command.PersistentFlags().StringSlice("disable-kinds", []string{}, "Kinds that should not be discovered, e.g. ai-search,containers")
	cobra.CheckErr(viper.BindEnv("disable-kinds", "DISABLE_KINDS"))

	command.PersistentFlags().Int("max-parallel", DefaultMaxParallel, "The maximum number of concurrent enrichment requests")
	cobra.CheckErr(viper.BindEnv("max-parallel", "MAX_PARALLEL"))
	command.PersistentFlags().Bool("allow-overlapping-runs", false, "Allow a run to start while the previous one for the same account is still going")
	cobra.CheckErr(viper.BindEnv("allow-overlapping-runs", "ALLOW_OVERLAPPING_RUNS"))

	command.PersistentFlags().Duration("request-timeout", cloudflare.DefaultTimeout, "The timeout of each Cloudflare API attempt")
	cobra.CheckErr(viper.BindEnv("request-timeout", "REQUEST_TIMEOUT"))
	command.PersistentFlags().Int("max-attempts", cloudflare.DefaultMaxAttempts, "The number of attempts per Cloudflare API request when the API can't be reached")
	cobra.CheckErr(viper.BindEnv("max-attempts", "MAX_ATTEMPTS"))
	command.PersistentFlags().Float64("rate-limit", 0, "The maximum number of Cloudflare API requests per second, 0 for no limit")
	cobra.CheckErr(viper.BindEnv("rate-limit", "RATE_LIMIT"))
	command.PersistentFlags().Duration("backoff-base", cloudflare.DefaultBackoffBase, "The base delay between attempts")
	cobra.CheckErr(viper.BindEnv("backoff-base", "BACKOFF_BASE"))
	command.PersistentFlags().Duration("backoff-max", cloudflare.DefaultBackoffMax, "The maximum delay between attempts")
	cobra.CheckErr(viper.BindEnv("backoff-max", "BACKOFF_MAX"))
	command.PersistentFlags().Int("verify-retries", 5, "How many times to retry verifying the API token at startup")
	cobra.CheckErr(viper.BindEnv("verify-retries", "VERIFY_RETRIES"))

	command.PersistentFlags().Duration("schedule-frequency", DefaultScheduleFrequency, "How often to run discovery")
	cobra.CheckErr(viper.BindEnv("schedule-frequency", "SCHEDULE_FREQUENCY"))
	command.PersistentFlags().Duration("schedule-timeout", DefaultScheduleTimeout, "The deadline of a single discovery run")
	cobra.CheckErr(viper.BindEnv("schedule-timeout", "SCHEDULE_TIMEOUT"))

	command.PersistentFlags().String("catalog-sink", SinkHTTP, "Where to send entities: http, nats, bolt or stdout")
	cobra.CheckErr(viper.BindEnv("catalog-sink", "CATALOG_SINK"))
	command.PersistentFlags().String("catalog-format", catalog.FormatJSON, "The output format of the stdout sink: json or yaml")
	cobra.CheckErr(viper.BindEnv("catalog-format", "CATALOG_FORMAT"))
	command.PersistentFlags().String("catalog-url", "", "The catalog endpoint that accepts mutations, for the http sink")
	cobra.CheckErr(viper.BindEnv("catalog-url", "CATALOG_URL"))
	command.PersistentFlags().String("catalog-token", "", "The bearer token for the catalog endpoint")
	cobra.CheckErr(viper.BindEnv("catalog-token", "CATALOG_TOKEN"))
	command.PersistentFlags().String("catalog-subject", catalog.DefaultSubject, "The NATS subject mutations are sent to, for the nats sink")
	cobra.CheckErr(viper.BindEnv("catalog-subject", "CATALOG_SUBJECT"))
	command.PersistentFlags().String("catalog-path", "catalog.db", "The database file, for the bolt sink")
	cobra.CheckErr(viper.BindEnv("catalog-path", "CATALOG_PATH"))
	command.PersistentFlags().Duration("catalog-timeout", 30*time.Second, "How long to wait for the catalog to accept a mutation")
	cobra.CheckErr(viper.BindEnv("catalog-timeout", "CATALOG_TIMEOUT"))

	command.PersistentFlags().StringSlice("nats-servers", []string{}, "The NATS servers to connect to")
	cobra.CheckErr(viper.BindEnv("nats-servers", "NATS_SERVERS"))
	command.PersistentFlags().String("nats-token", "", "The NATS auth token")
	cobra.CheckErr(viper.BindEnv("nats-token", "NATS_TOKEN"))
	command.PersistentFlags().String("nats-connection-name", "", "The name that the source should use to connect to NATS")
	cobra.CheckErr(viper.BindEnv("nats-connection-name", "NATS_CONNECTION_NAME"))
	command.PersistentFlags().Int("nats-connection-timeout", 10, "The timeout for connecting to NATS")
	cobra.CheckErr(viper.BindEnv("nats-connection-timeout", "NATS_CONNECTION_TIMEOUT"))
}

// parseKinds resolves kind names, accepting comma separated values inside a
// single element as they arrive from environment variables
func parseKinds(names []string) (map[cloudflare.Kind]bool, error) {
	kinds := make(map[cloudflare.Kind]bool)
	var errs []error
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			kind := cloudflare.Kind(name)
			if !slices.Contains(cloudflare.AllKinds, kind) {
				errs = append(errs, fmt.Errorf("unknown kind %q", name))
				continue
			}
			kinds[kind] = true
		}
	}
	return kinds, errors.Join(errs...)
}

func EngineConfigFromViper(engineType, version string) (*EngineConfig, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("error getting hostname: %w", err)
	}

	sourceName := viper.GetString("source-name")
	if sourceName == "" {
		sourceName = fmt.Sprintf("%s-%s", engineType, hostname)
	}

	accountID := viper.GetString("account-id")
	if accountID == "" {
		return nil, errors.New("account-id (CLOUDFLARE_ACCOUNT_ID) must be set")
	}
	apiToken := viper.GetString("api-token")
	if apiToken == "" {
		return nil, errors.New("api-token (CLOUDFLARE_API_TOKEN) must be set")
	}

	disabled, err := parseKinds(viper.GetStringSlice("disable-kinds"))
	if err != nil {
		return nil, fmt.Errorf("error parsing disable-kinds: %w", err)
	}

	sink := viper.GetString("catalog-sink")
	if sink == "" {
		sink = SinkHTTP
	}

	natsConnectionName := viper.GetString("nats-connection-name")
	if natsConnectionName == "" {
		natsConnectionName = sourceName
	}
	natsOptions := auth.NATSOptions{
		NumRetries:        -1,
		RetryDelay:        5 * time.Second,
		Servers:           viper.GetStringSlice("nats-servers"),
		ConnectionName:    natsConnectionName,
		Token:             viper.GetString("nats-token"),
		ConnectionTimeout: time.Duration(viper.GetInt("nats-connection-timeout")) * time.Second,
		MaxReconnects:     -1,
		ReconnectWait:     1 * time.Second,
		ReconnectJitter:   1 * time.Second,
	}

	switch sink {
	case SinkHTTP:
		if viper.GetString("catalog-url") == "" {
			return nil, errors.New("catalog-url must be set for the http catalog sink")
		}
	case SinkNATS:
		if len(natsOptions.Servers) == 0 {
			return nil, errors.New("nats-servers must be set for the nats catalog sink")
		}
	case SinkBolt:
		if viper.GetString("catalog-path") == "" {
			return nil, errors.New("catalog-path must be set for the bolt catalog sink")
		}
	case SinkStdout:
		if format := viper.GetString("catalog-format"); format != "" && format != catalog.FormatJSON && format != catalog.FormatYAML {
			return nil, fmt.Errorf("unknown catalog-format %q, expected json or yaml", format)
		}
	default:
		return nil, fmt.Errorf("unknown catalog-sink %q, expected http, nats, bolt or stdout", sink)
	}

	maxParallel := viper.GetInt("max-parallel")
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	return &EngineConfig{
		EngineType: engineType,
		Version:    version,
		SourceName: sourceName,
		Account: AccountIdentity{
			AccountID: accountID,
			APIToken:  apiToken,
		},
		Owner:                viper.GetString("owner"),
		System:               viper.GetString("system"),
		DisabledKinds:        disabled,
		MaxParallel:          maxParallel,
		AllowOverlappingRuns: viper.GetBool("allow-overlapping-runs"),
		APIBaseURL:           viper.GetString("api-base-url"),
		RequestTimeout:       viper.GetDuration("request-timeout"),
		MaxAttempts:          viper.GetInt("max-attempts"),
		RateLimit:            viper.GetFloat64("rate-limit"),
		BackoffBase:          viper.GetDuration("backoff-base"),
		BackoffMax:           viper.GetDuration("backoff-max"),
		VerifyRetries:        viper.GetInt("verify-retries"),
		ScheduleFrequency:    viper.GetDuration("schedule-frequency"),
		ScheduleTimeout:      viper.GetDuration("schedule-timeout"),
		CatalogSink:          sink,
		CatalogFormat:        viper.GetString("catalog-format"),
		CatalogURL:           viper.GetString("catalog-url"),
		CatalogToken:         viper.GetString("catalog-token"),
		CatalogSubject:       viper.GetString("catalog-subject"),
		CatalogPath:          viper.GetString("catalog-path"),
		CatalogTimeout:       viper.GetDuration("catalog-timeout"),
		NATSOptions:          &natsOptions,
	}, nil
}

// MapFromEngineConfig Returns the config as a map
func MapFromEngineConfig(ec *EngineConfig) map[string]any {
	var apiToken string
	if ec.Account.APIToken != "" {
		apiToken = "[REDACTED]"
	}
	var catalogToken string
	if ec.CatalogToken != "" {
		catalogToken = "[REDACTED]"
	}

	disabled := make([]string, 0, len(ec.DisabledKinds))
	for _, kind := range cloudflare.AllKinds {
		if ec.DisabledKinds[kind] {
			disabled = append(disabled, string(kind))
		}
	}

	m := map[string]any{
		"engine-type":            ec.EngineType,
		"version":                ec.Version,
		"source-name":            ec.SourceName,
		"account-id":             ec.Account.AccountID,
		"api-token":              apiToken,
		"api-base-url":           ec.APIBaseURL,
		"owner":                  ec.Owner,
		"system":                 ec.System,
		"disable-kinds":          disabled,
		"max-parallel":           ec.MaxParallel,
		"allow-overlapping-runs": ec.AllowOverlappingRuns,
		"request-timeout":        ec.RequestTimeout.String(),
		"max-attempts":           ec.MaxAttempts,
		"rate-limit":             ec.RateLimit,
		"schedule-frequency":     ec.ScheduleFrequency.String(),
		"schedule-timeout":       ec.ScheduleTimeout.String(),
		"catalog-sink":           ec.CatalogSink,
		"catalog-url":            ec.CatalogURL,
		"catalog-token":          catalogToken,
		"catalog-subject":        ec.CatalogSubject,
		"catalog-path":           ec.CatalogPath,
	}
	if ec.NATSOptions != nil {
		m["nats-servers"] = ec.NATSOptions.Servers
		m["nats-connection-name"] = ec.NATSOptions.ConnectionName
	}
	return m
}

// CreateApplier connects the configured catalog sink. The returned close
// function releases the connection or database and is never nil.
func (ec *EngineConfig) CreateApplier(ctx context.Context) (catalog.Applier, func() error, error) {
	noop := func() error { return nil }

	switch ec.CatalogSink {
	case SinkHTTP, "":
		return catalog.NewHTTPSink(ec.CatalogURL, catalog.HTTPSinkOptions{
			Token:   ec.CatalogToken,
			Timeout: ec.CatalogTimeout,
			Retries: 3,
		}), noop, nil
	case SinkNATS:
		if ec.NATSOptions == nil {
			return nil, noop, errors.New("nats options are required for the nats catalog sink")
		}
		conn, err := ec.NATSOptions.Connect(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("error connecting to NATS: %w", err)
		}
		return catalog.NewNATSSink(conn, ec.CatalogSubject, ec.CatalogTimeout), conn.Drain, nil
	case SinkBolt:
		store, err := catalog.NewStore(ec.CatalogPath)
		if err != nil {
			return nil, noop, fmt.Errorf("error opening catalog store: %w", err)
		}
		return store, store.Close, nil
	case SinkStdout:
		return catalog.NewWriterSink(os.Stdout, ec.CatalogFormat), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown catalog sink %q", ec.CatalogSink)
	}
}

// NewCloudflareEngine wires an engine for the configured account: the API
// client, every Cloudflare kind, the catalog sink and a metrics recorder.
// The returned close function releases the sink.
func NewCloudflareEngine(ctx context.Context, ec *EngineConfig, recorder *Recorder) (*Engine, *cloudflare.API, func() error, error) {
	api, err := cloudflare.NewAPI(ec.CloudflareConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error creating cloudflare client: %w", err)
	}

	applier, closeSink, err := ec.CreateApplier(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	e, err := NewEngine(ec, CloudflareKinds(api), applier)
	if err != nil {
		_ = closeSink()
		return nil, nil, nil, err
	}
	e.Recorder = recorder

	log.WithFields(MapFromEngineConfig(ec)).WithField("kinds", e.Kinds()).Info("Engine config")

	return e, api, closeSink, nil
}
