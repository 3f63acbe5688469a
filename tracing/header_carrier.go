package tracing

import (
	"maps"
	"slices"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"
)

// NatsHeaderCarrier lets catalog mutations carry the discovery run's trace
// context across NATS
type NatsHeaderCarrier nats.Header

var _ propagation.TextMapCarrier = NatsHeaderCarrier{}

// NewNatsHeaderCarrier wraps h. Set panics if h is nil, so callers that
// inject must allocate the header first.
func NewNatsHeaderCarrier(h nats.Header) NatsHeaderCarrier {
	return NatsHeaderCarrier(h)
}

func (c NatsHeaderCarrier) Get(key string) string {
	return nats.Header(c).Get(key)
}

func (c NatsHeaderCarrier) Set(key, value string) {
	nats.Header(c).Set(key, value)
}

func (c NatsHeaderCarrier) Keys() []string {
	return slices.Collect(maps.Keys(c))
}
