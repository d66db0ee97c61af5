package softcache

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with softcache-specific context.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithName adds a cache name field to the logger.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("cache", name),
	}
}

// WithIteration adds an iteration field to the logger.
func (l *Logger) WithIteration(i int) *Logger {
	return &Logger{
		Logger: l.Logger.With("iteration", i),
	}
}

// LogBuild logs cache construction.
func (l *Logger) LogBuild(ctx context.Context, residentSlots, lineSize, fetchCount int, strategy string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"resident_slots", residentSlots,
			"line_size", lineSize,
			"fetch_count", fetchCount,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "build completed",
			"resident_slots", residentSlots,
			"line_size", lineSize,
			"fetch_count", fetchCount,
			"strategy", strategy,
		)
	}
}

// LogFetches logs a fetch run.
func (l *Logger) LogFetches(ctx context.Context, iterations int, elapsed time.Duration, bytesMoved int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fetch run failed",
			"iterations", iterations,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "fetch run completed",
		"iterations", iterations,
		"elapsed", elapsed,
		"bytes_moved", bytesMoved,
	)
}

// LogSnapshot logs a resident-set snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, op string, compression string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"op", op,
			"compression", compression,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"op", op,
			"compression", compression,
		)
	}
}
