package logger

import (
	"context"
)

// Entry accumulates metric fields for a single log line, e.g. duration_ms
// and count for a finished chunk attempt.
// Example: logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Chunk processed")
type Entry struct {
	logger *Logger
	fields Fields
}

// With starts an Entry on the default logger with the given metric fields.
func With(fields Fields) *Entry {
	return &Entry{
		logger: getDefaultLogger(),
		fields: fields,
	}
}

// With returns a copy of the Entry with additional fields merged in. Later
// fields win on key collisions.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

// WithField returns a copy of the Entry with one additional field.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.With(Fields{key: value})
}

// WithDuration attaches the attempt duration in milliseconds.
func (e *Entry) WithDuration(ms int64) *Entry {
	return e.WithField(FieldDurationMs, ms)
}

// WithCount attaches an item count.
func (e *Entry) WithCount(count int) *Entry {
	return e.WithField(FieldCount, count)
}

// WithSize attaches a payload size.
func (e *Entry) WithSize(size int) *Entry {
	return e.WithField(FieldSize, size)
}

// WithStatus attaches a chunk or job status.
func (e *Entry) WithStatus(status string) *Entry {
	return e.WithField(FieldStatus, status)
}

// resolve picks the logger for the emit: the context logger when one is
// attached, so job/chunk/worker fields injected upstream carry through,
// otherwise the Entry's own.
func (e *Entry) resolve(ctx context.Context) *Logger {
	if l, ok := Lookup(ctx); ok {
		return l
	}
	return e.logger
}

// Debug emits the Entry at Debug level.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Debugf(format, args...)
}

// Info emits the Entry at Info level.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Infof(format, args...)
}

// Warn emits the Entry at Warn level.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Warnf(format, args...)
}

// Error emits the Entry at Error level.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Errorf(format, args...)
}

// Fatal emits the Entry at Fatal level and exits.
func (e *Entry) Fatal(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Fatalf(format, args...)
}
