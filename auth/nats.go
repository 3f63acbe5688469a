package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	MaxReconnectsDefault     = -1
	ReconnectWaitDefault     = time.Second
	ReconnectJitterDefault   = 5 * time.Second
	ConnectionTimeoutDefault = 10 * time.Second
	RetryDelayDefault        = 5 * time.Second
)

// ErrMaxRetries is joined to the last dial error once NumRetries is used up
var ErrMaxRetries = errors.New("maximum NATS connection retries reached")

// NATSOptions configures the connection used by the NATS catalog sink and
// the catalog responder. Zero values fall back to the defaults above.
type NATSOptions struct {
	Servers           []string
	ConnectionName    string
	Token             string        // optional auth token
	MaxReconnects     int           // reconnects after a drop, -1 for no limit
	ConnectionTimeout time.Duration // dial timeout
	ReconnectWait     time.Duration
	ReconnectJitter   time.Duration // upper bound of the random delay added to ReconnectWait
	NumRetries        int           // retries of the first connection, -1 retries until ctx is done
	RetryDelay        time.Duration // delay between first connection attempts
	AdditionalOptions []nats.Option
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// connFields describes c for logs
func connFields(c *nats.Conn) log.Fields {
	if c == nil {
		return log.Fields{}
	}

	fields := log.Fields{
		"cf.nats.url":        c.ConnectedUrl(),
		"cf.nats.serverId":   c.ConnectedServerId(),
		"cf.nats.reconnects": c.Reconnects,
	}
	if err := c.LastError(); err != nil {
		fields["cf.nats.lastError"] = err.Error()
	}
	return fields
}

// ToNatsOptions returns the comma separated server list and the options to
// dial it with. Connection events are logged through logrus.
func (o NATSOptions) ToNatsOptions() (string, []nats.Option) {
	jitter := orDefault(o.ReconnectJitter, ReconnectJitterDefault)

	options := []nats.Option{
		nats.MaxReconnects(orDefault(o.MaxReconnects, MaxReconnectsDefault)),
		nats.Timeout(orDefault(o.ConnectionTimeout, ConnectionTimeoutDefault)),
		nats.ReconnectWait(orDefault(o.ReconnectWait, ReconnectWaitDefault)),
		nats.ReconnectJitter(jitter, jitter),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			entry := log.WithFields(connFields(c))
			if err != nil {
				entry.WithError(err).Warn("NATS disconnected")
				return
			}
			entry.Debug("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithFields(connFields(c)).Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			log.WithFields(connFields(c)).Debug("NATS connection closed")
		}),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			entry := log.WithFields(connFields(c)).WithError(err)
			if s != nil {
				entry = entry.WithFields(log.Fields{
					"cf.nats.subject": s.Subject,
					"cf.nats.queue":   s.Queue,
				})
			}
			entry.Error("NATS error")
		}),
	}

	if o.ConnectionName != "" {
		options = append(options, nats.Name(o.ConnectionName))
	}
	if o.Token != "" {
		options = append(options, nats.Token(o.Token))
	}

	return strings.Join(o.Servers, ","), append(options, o.AdditionalOptions...)
}

// Connect dials the servers, retrying every RetryDelay while they are
// unavailable. It gives up after NumRetries retries or when ctx is done.
func (o NATSOptions) Connect(ctx context.Context) (*nats.Conn, error) {
	servers, opts := o.ToNatsOptions()
	lf := log.Fields{"servers": servers}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(orDefault(o.RetryDelay, RetryDelayDefault))),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WithError(err).WithFields(lf).WithField("retryIn", next.String()).Warn("Could not connect to NATS")
		}),
	}
	if o.NumRetries >= 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(uint(o.NumRetries)+1))
	}

	log.WithFields(lf).Info("NATS connecting")

	nc, err := backoff.Retry(ctx, func() (*nats.Conn, error) {
		return nats.Connect(servers, opts...)
	}, retryOpts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.Join(err, ErrMaxRetries)
	}

	log.WithFields(lf).WithFields(connFields(nc)).Info("NATS connected")
	return nc, nil
}
