package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/healthfees-org/cloudflare-backstage.io/tracing"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultScheduleFrequency = 30 * time.Minute
	DefaultScheduleTimeout   = 10 * time.Minute
)

// Runner is anything that can perform a discovery run
type Runner interface {
	Run(ctx context.Context) (*RunResult, error)
}

// Scheduler runs discovery immediately and then every Frequency until its
// context is cancelled. Each run gets its own deadline of Timeout.
type Scheduler struct {
	Runner    Runner
	Frequency time.Duration
	Timeout   time.Duration
}

func (s *Scheduler) frequency() time.Duration {
	if s.Frequency <= 0 {
		return DefaultScheduleFrequency
	}
	return s.Frequency
}

func (s *Scheduler) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultScheduleTimeout
	}
	return s.Timeout
}

// Start blocks until ctx is done. Failed runs are logged by the engine and
// do not stop the schedule.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.frequency())
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	defer tracing.LogRecoverToReturn(ctx, "Scheduler.runOnce")

	if ctx.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	_, err := s.Runner.Run(runCtx)
	if errors.Is(err, ErrRunInProgress) {
		log.WithContext(ctx).Info("Previous discovery run is still in progress, skipping this one")
	}
}
