// Package log provides structured logging for go-asl.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// ParseLevel maps a level name to a slog level.
// Valid levels: "debug", "info", "warn", "error". Anything else is info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. JSON output when GO_ENV=production,
// text otherwise.
func New(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	if os.Getenv("GO_ENV") == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init initializes the global logger with the specified level.
// Only the first call has any effect. Logs go to stderr so command output
// on stdout stays machine readable.
func Init(level string) {
	once.Do(func() {
		logger = New(os.Stderr, level)
		slog.SetDefault(logger)
	})
}

// L returns the global logger instance.
func L() *slog.Logger {
	Init("info")
	return logger
}

// For returns the global logger tagged with a component name.
func For(component string) *slog.Logger {
	return L().With("component", component)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
