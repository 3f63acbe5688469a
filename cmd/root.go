package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/healthfees-org/cloudflare-backstage.io/discovery"
	"github.com/healthfees-org/cloudflare-backstage.io/logging"
	"github.com/healthfees-org/cloudflare-backstage.io/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const engineType = "cloudflare-discovery"

var cfgFile string

// rootCmd runs the scheduled discovery daemon when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "cloudflare-backstage",
	Short: "Discovers Cloudflare resources and keeps a software catalog in sync",
	Long: `Discovers the Workers, Pages projects, R2 buckets, D1 databases, KV
namespaces, Queues and other resources of a Cloudflare account, maps each to a
catalog Resource entity and replaces the account's entities in the catalog on
every run.
`,
	Version: tracing.Version(),
	Run:     runDaemon,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
		bindUnsetFlags(cmd.Flags())

		err := tracing.Init(tracing.Config{
			Component:       engineType,
			AccountID:       viper.GetString("account-id"),
			HoneycombAPIKey: viper.GetString("honeycomb-api-key"),
			SentryDSN:       viper.GetString("sentry-dsn"),
			Environment:     viper.GetString("environment"),
			StdoutDump:      viper.GetBool("stdout-trace-dump"),
		})
		if err != nil {
			log.WithError(err).Fatal("Could not initialise tracing")
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		tracing.ShutdownTracer(context.Background())
	},
}

// Execute runs the command line. It is called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file path")
	flags.String("log", "info", "Log level: panic, fatal, error, warn, info, debug or trace")
	cobra.CheckErr(viper.BindEnv("log", "CLOUDFLARE_LOG", "LOG"))
	flags.Bool("json-logs", false, "Emit logs as JSON with a severity field")
	cobra.CheckErr(viper.BindEnv("json-logs", "JSON_LOGS"))

	discovery.AddEngineFlags(rootCmd)

	flags.String("service-port", "8089", "the port to serve /healthz and /metrics on")
	cobra.CheckErr(viper.BindEnv("service-port", "SERVICE_PORT"))

	flags.String("honeycomb-api-key", "", "Send traces to honeycomb with this key")
	cobra.CheckErr(viper.BindEnv("honeycomb-api-key", "HONEYCOMB_API_KEY"))
	flags.String("sentry-dsn", "", "Report errors and panics to this sentry DSN")
	cobra.CheckErr(viper.BindEnv("sentry-dsn", "SENTRY_DSN"))
	flags.String("environment", "dev", "The environment reported to sentry")
	cobra.CheckErr(viper.BindEnv("environment", "ENVIRONMENT"))
	flags.Bool("stdout-trace-dump", false, "Pretty print every span to stdout")

	cobra.CheckErr(viper.BindPFlags(flags))
}

func configureLogging() {
	lvl, err := log.ParseLevel(viper.GetString("log"))
	if err != nil {
		lvl = log.InfoLevel
		log.WithError(err).WithField("log", viper.GetString("log")).Error("Unknown log level, using info")
	}
	log.SetLevel(lvl)

	if viper.GetBool("json-logs") {
		logging.ConfigureLogrusJSON(log.StandardLogger())
	}
}

// bindUnsetFlags lets a subcommand's own flags be overridden from the config
// file or environment. Flags with an empty default are left to viper.
func bindUnsetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.DefValue == "" && !f.Changed {
			return
		}
		if err := viper.BindPFlag(f.Name, f); err != nil {
			log.WithError(err).WithField("flag", f.Name).Fatal("Could not bind flag")
		}
	})
}

// initConfig reads the optional config file. Environment variables use the
// CLOUDFLARE_ prefix with dashes turned into underscores.
func initConfig() {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("CLOUDFLARE")
	viper.AutomaticEnv()

	if cfgFile == "" {
		return
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		log.WithError(err).WithField("config", cfgFile).Warn("Could not read config file")
		return
	}
	log.WithField("config", viper.ConfigFileUsed()).Info("Using config file")
}
