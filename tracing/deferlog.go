package tracing

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LogRecoverToReturn is deferred at the top of goroutines. A panic is
// reported to sentry, the log and the current span, then the goroutine
// returns normally. Without a panic it does nothing.
func LogRecoverToReturn(ctx context.Context, loc string) {
	if r := recover(); r != nil {
		reportPanic(ctx, loc, r, string(debug.Stack()))
	}
}

func reportPanic(ctx context.Context, loc string, recovered any, stack string) {
	msg := fmt.Sprintf("unhandled panic in %v: %v", loc, recovered)

	if hub := sentry.CurrentHub(); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("loc", loc)
			hub.Recover(recovered)
		})
	}

	if ctx == nil {
		ctx = context.Background()
	}
	log.WithContext(ctx).WithFields(log.Fields{"loc": loc, "stack": stack}).Error(msg)

	span := trace.SpanFromContext(ctx)
	span.SetStatus(codes.Error, msg)
	span.SetAttributes(
		attribute.String("cf.panic.loc", loc),
		attribute.String("cf.panic.stack", stack),
	)
}
