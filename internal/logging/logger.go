// Package logging defines the structured-logging interface shared by the
// server and the field client. The slog-backed implementation lives in this
// package; anything else satisfying the interface can be dropped in.
package logging

import "context"

// Logger is a context-aware, structured logger. Variadic args are
// alternating key–value pairs:
//
//	log.Info(ctx, "sync round done", "device_id", id, "applied", n)
type Logger interface {
	// Debug logs a verbose diagnostic message.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs an unusual but non-fatal condition.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs a failure.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always carries the given pairs.
	With(args ...any) Logger
}
