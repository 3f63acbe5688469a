package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/healthfees-org/cloudflare-backstage.io/discovery"
	"github.com/healthfees-org/cloudflare-backstage.io/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runCmd is the daemon, also reachable as the root command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run discovery now and then on a schedule",
	Run:   runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer tracing.LogRecoverToReturn(ctx, "cloudflare-discovery.run")

	// get engine config
	engineConfig, err := discovery.EngineConfigFromViper(engineType, tracing.Version())
	if err != nil {
		log.WithError(err).Fatal("Could not get engine config from viper")
	}

	recorder := discovery.NewRecorder()
	registry := prometheus.NewRegistry()
	registry.MustRegister(recorder.Collectors()...)
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e, api, closeSink, err := discovery.NewCloudflareEngine(ctx, engineConfig, recorder)
	if err != nil {
		sentry.CaptureException(err)
		log.WithError(err).Fatal("Could not initialize cloudflare discovery engine")
	}
	defer func() {
		if err := closeSink(); err != nil {
			log.WithError(err).Error("Could not close catalog sink")
		}
	}()

	server := newServiceServer(viper.GetString("service-port"), e, registry)
	go func() {
		defer sentry.Recover()

		err := server.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).WithField("addr", server.Addr).Error("Could not start HTTP server for /healthz and /metrics")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	// A rejected token will not fix itself, so the process idles with a
	// failing health check instead of crash looping
	if err := discovery.VerifyToken(ctx, api.Client, engineConfig.VerifyRetries); err != nil {
		if ctx.Err() != nil {
			return
		}
		sentry.CaptureException(err)
		log.WithError(err).Error("Could not verify Cloudflare API token")
		e.SetInitError(err)
		<-ctx.Done()
		return
	}

	scheduler := &discovery.Scheduler{
		Runner:    e,
		Frequency: engineConfig.ScheduleFrequency,
		Timeout:   engineConfig.ScheduleTimeout,
	}

	log.WithFields(log.Fields{
		"frequency": scheduler.Frequency.String(),
		"timeout":   scheduler.Timeout.String(),
	}).Info("Starting discovery schedule")

	scheduler.Start(ctx)

	log.Info("Stopped")
}

// newServiceServer serves the health check and metrics endpoints
func newServiceServer(port string, e *discovery.Engine, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.HealthCheckTracer().Start(r.Context(), "healthcheck")
		defer span.End()

		if err := e.HealthCheck(ctx); err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(rw, "ok %v", e.State())
	})

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
