package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/healthfees-org/cloudflare-backstage.io/auth"
	"github.com/healthfees-org/cloudflare-backstage.io/catalog"
	"github.com/healthfees-org/cloudflare-backstage.io/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Work with the local entity catalog",
}

var catalogServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept catalog mutations over HTTP and NATS and store them locally",
	Long: `Opens the bolt catalog at --catalog-path and applies every mutation it
receives to it. Mutations are accepted as POST /mutations on --listen and, when
--nats-servers is set, as requests on --catalog-subject.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := catalog.NewStore(viper.GetString("catalog-path"))
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.WithError(err).Error("Could not close catalog store")
			}
		}()

		g, ctx := errgroup.WithContext(ctx)

		server := newCatalogServer(viper.GetString("listen"), viper.GetString("listen-token"), store)
		g.Go(func() error {
			log.WithField("addr", server.Addr).Info("Serving catalog over HTTP")
			err := server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})

		if servers := viper.GetStringSlice("nats-servers"); len(servers) > 0 {
			natsOptions := auth.NATSOptions{
				Servers:           servers,
				ConnectionName:    "cloudflare-backstage-catalog",
				Token:             viper.GetString("nats-token"),
				ConnectionTimeout: time.Duration(viper.GetInt("nats-connection-timeout")) * time.Second,
				MaxReconnects:     -1,
				ReconnectWait:     time.Second,
				ReconnectJitter:   time.Second,
				NumRetries:        -1,
				RetryDelay:        5 * time.Second,
			}
			conn, err := natsOptions.Connect(ctx)
			if err != nil {
				stop()
				return errors.Join(fmt.Errorf("could not connect to NATS: %w", err), g.Wait())
			}
			defer conn.Close()

			g.Go(func() error {
				defer sentry.Recover()
				return catalog.ServeNATS(ctx, conn, viper.GetString("catalog-subject"), store)
			})
		}

		return g.Wait()
	},
}

// newCatalogServer exposes the store. Only POST /mutations requires the token.
func newCatalogServer(addr, token string, store *catalog.Store) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/mutations", auth.RequireBearer(token, catalog.NewHandler(store)))

	mux.HandleFunc("/locations", func(rw http.ResponseWriter, r *http.Request) {
		locations, err := store.Locations()
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, locations)
	})

	mux.HandleFunc("/entities", func(rw http.ResponseWriter, r *http.Request) {
		entities, err := store.Entities(r.URL.Query().Get("location"))
		if errors.Is(err, catalog.ErrUnknownLocation) {
			http.Error(rw, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, entities)
	})

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		_, span := tracing.HealthCheckTracer().Start(r.Context(), "healthcheck")
		defer span.End()

		if _, err := store.Locations(); err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(rw, "ok")
	})

	return &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(mux, "catalog"),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.WithError(err).Error("Could not write response")
	}
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogServeCmd)

	catalogServeCmd.Flags().String("listen", ":8090", "The address to accept catalog mutations on")
	catalogServeCmd.Flags().String("listen-token", "", "Require this bearer token on POST /mutations")
	cobra.CheckErr(viper.BindEnv("listen-token", "CATALOG_LISTEN_TOKEN"))
	cobra.CheckErr(viper.BindPFlags(catalogServeCmd.Flags()))
}
