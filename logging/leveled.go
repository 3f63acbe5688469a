package logging

import (
	log "github.com/sirupsen/logrus"
)

// LeveledLogger adapts a logrus entry to the retryablehttp.LeveledLogger
// interface so that retry attempts end up in the same structured stream as
// everything else.
type LeveledLogger struct {
	entry *log.Entry
}

// NewLeveledLogger returns a LeveledLogger writing through the given entry. A
// nil entry uses the standard logger.
func NewLeveledLogger(entry *log.Entry) *LeveledLogger {
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	return &LeveledLogger{entry: entry}
}

func (l *LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fieldsFromKV(keysAndValues)).Error(msg)
}

func (l *LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fieldsFromKV(keysAndValues)).Info(msg)
}

// Debug is mapped to trace since retryablehttp logs every request at debug
func (l *LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fieldsFromKV(keysAndValues)).Trace(msg)
}

func (l *LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fieldsFromKV(keysAndValues)).Warn(msg)
}

func fieldsFromKV(keysAndValues []interface{}) log.Fields {
	fields := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
