package tracing

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestNatsHeaderCarrierPropagates(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg := nats.NewMsg("catalog.mutations")
	propagator := propagation.TraceContext{}
	propagator.Inject(ctx, NewNatsHeaderCarrier(msg.Header))

	carrier := NewNatsHeaderCarrier(msg.Header)
	if carrier.Get("traceparent") == "" {
		t.Fatalf("expected a traceparent header, got keys %v", carrier.Keys())
	}

	extracted := trace.SpanContextFromContext(propagator.Extract(context.Background(), carrier))
	if extracted.TraceID() != traceID || extracted.SpanID() != spanID {
		t.Errorf("expected %v/%v, got %v/%v", traceID, spanID, extracted.TraceID(), extracted.SpanID())
	}
}
