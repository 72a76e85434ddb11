package minq

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with minq-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithCollection adds a collection field to the logger.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", name),
	}
}

// LogRead logs a finalizer (toArray, one, stream, count).
func (l *Logger) LogRead(ctx context.Context, op string, results int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "read failed",
			"op", op,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "read completed",
		"op", op,
		"results", results,
	)
}

// LogWrite logs a mutator (insert, update, upsert, remove, removeAll).
func (l *Logger) LogWrite(ctx context.Context, op string, affected int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "write failed",
			"op", op,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "write completed",
		"op", op,
		"affected", affected,
	)
}
