package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/healthfees-org/cloudflare-backstage.io/tracing"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultSubject = "catalog.mutations"
	// queueGroup lets several responders share one subject
	queueGroup = "catalog"
)

// NATSSink sends mutations as NATS requests and waits for a Reply
type NATSSink struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

// NewNATSSink uses DefaultSubject when subject is empty. timeout bounds the
// wait for a reply when ctx has no earlier deadline.
func NewNATSSink(conn *nats.Conn, subject string, timeout time.Duration) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NATSSink{conn: conn, subject: subject, timeout: timeout}
}

func (s *NATSSink) Apply(ctx context.Context, m Mutation) (ApplyStats, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return ApplyStats{}, fmt.Errorf("encoding mutation: %w", err)
	}

	msg := nats.NewMsg(s.subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, tracing.NewNatsHeaderCarrier(msg.Header))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return ApplyStats{}, fmt.Errorf("requesting %v: %w", s.subject, err)
	}

	var reply Reply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		return ApplyStats{}, fmt.Errorf("decoding reply from %v: %w", s.subject, err)
	}
	if !reply.OK {
		return reply.Stats, fmt.Errorf("catalog on %v rejected mutation: %s", s.subject, reply.Error)
	}

	return reply.Stats, nil
}

// ServeNATS answers mutation requests on subject by applying them to a. It
// blocks until ctx is done, then drains the subscription.
func ServeNATS(ctx context.Context, conn *nats.Conn, subject string, a Applier) error {
	if subject == "" {
		subject = DefaultSubject
	}

	sub, err := conn.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
		handleMutation(ctx, msg, a)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %v: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"subject": subject,
		"queue":   queueGroup,
	}).Info("Serving catalog mutations")

	<-ctx.Done()

	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("draining %v: %w", subject, err)
	}
	return nil
}

func handleMutation(ctx context.Context, msg *nats.Msg, a Applier) {
	defer tracing.LogRecoverToReturn(ctx, "handleMutation")

	if msg.Header != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, tracing.NewNatsHeaderCarrier(msg.Header))
	}
	ctx, span := tracing.Tracer().Start(ctx, "ServeNATS.ApplyMutation", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var reply Reply
	var m Mutation
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		reply.Error = fmt.Sprintf("decoding mutation: %v", err)
	} else {
		span.SetAttributes(
			attribute.String("cf.catalog.locationKey", m.LocationKey),
			attribute.Int("cf.catalog.entities", len(m.Entities)),
		)

		stats, err := a.Apply(ctx, m)
		reply.Stats = stats
		if err != nil {
			reply.Error = err.Error()
			span.RecordError(err)
		} else {
			reply.OK = true
		}
	}

	data, err := json.Marshal(reply)
	if err != nil {
		log.WithContext(ctx).WithError(err).Error("Failed to encode catalog reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		log.WithContext(ctx).WithError(err).Error("Failed to respond to catalog mutation")
	}
}
