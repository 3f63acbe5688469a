package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/healthfees-org/cloudflare-backstage.io/discovery"
	"github.com/healthfees-org/cloudflare-backstage.io/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run discovery a single time and exit",
	Long: `Runs a single discovery and reconciliation and exits non-zero if it failed.
Use --catalog-sink stdout to print the entities instead of submitting them.
The whole command, including connecting the catalog sink, is bounded by
--schedule-timeout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engineConfig, err := discovery.EngineConfigFromViper(engineType, tracing.Version())
		if err != nil {
			return fmt.Errorf("could not get engine config: %w", err)
		}

		result, err := runOnce(ctx, engineConfig)
		if err != nil {
			return err
		}

		log.WithFields(result.LogFields()).WithFields(log.Fields{
			"runID":    result.RunID.String(),
			"skipped":  result.Skipped,
			"duration": result.Duration.String(),
		}).Info("Discovery run complete")

		return nil
	},
}

// runOnce connects the sink, verifies the token and runs discovery, all under
// the schedule timeout
func runOnce(ctx context.Context, engineConfig *discovery.EngineConfig) (*discovery.RunResult, error) {
	timeout := engineConfig.ScheduleTimeout
	if timeout <= 0 {
		timeout = discovery.DefaultScheduleTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e, api, closeSink, err := discovery.NewCloudflareEngine(ctx, engineConfig, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeSink(); err != nil {
			log.WithError(err).Error("Could not close catalog sink")
		}
	}()

	if err := discovery.VerifyToken(ctx, api.Client, engineConfig.VerifyRetries); err != nil {
		return nil, fmt.Errorf("could not verify cloudflare api token: %w", err)
	}

	return e.Run(ctx)
}

func init() {
	rootCmd.AddCommand(onceCmd)
}
