// Package logging configures logrus for the discovery daemon and adapts
// library loggers onto it.
package logging

import (
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// ConfigureLogrusJSON switches logger to JSON with a severity field and, for
// entries logged WithContext, the trace and span of that context.
func ConfigureLogrusJSON(logger *log.Logger) {
	if logger == nil {
		return
	}

	logger.SetFormatter(&log.JSONFormatter{})
	logger.AddHook(logHook{})
}

type logHook struct{}

func (logHook) Levels() []log.Level {
	return log.AllLevels
}

func (logHook) Fire(entry *log.Entry) error {
	if entry == nil {
		return nil
	}

	if _, ok := entry.Data["severity"]; !ok {
		entry.Data["severity"] = severityForLevel(entry.Level)
	}

	if entry.Context != nil {
		if sc := trace.SpanContextFromContext(entry.Context); sc.IsValid() {
			entry.Data["trace_id"] = sc.TraceID().String()
			entry.Data["span_id"] = sc.SpanID().String()
		}
	}

	return nil
}

// severityForLevel maps onto the LogSeverity names log collectors expect
func severityForLevel(level log.Level) string {
	switch level {
	case log.PanicLevel:
		return "EMERGENCY"
	case log.FatalLevel:
		return "CRITICAL"
	case log.ErrorLevel:
		return "ERROR"
	case log.WarnLevel:
		return "WARNING"
	case log.InfoLevel:
		return "INFO"
	case log.DebugLevel, log.TraceLevel:
		return "DEBUG"
	default:
		return "DEFAULT"
	}
}
