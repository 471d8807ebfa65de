// Package logger provides structured, context-aware logging for the guardrail
// service. The production implementation wraps zap; a no-op implementation is
// available for tests.
package logger

import "context"

// Fields is a set of structured key-value pairs attached to a log entry.
type Fields map[string]interface{}

// Logger is the logging interface all components depend on.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	Fatal(ctx context.Context, msg string, err error, fields ...Fields)

	// WithFields returns a derived logger that attaches the given fields to
	// every entry.
	WithFields(fields Fields) Logger
	// WithComponent returns a derived logger tagged with a component name.
	WithComponent(component string) Logger
}
