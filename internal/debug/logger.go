// Package debug provides the package-level structured logger shared by the
// builder, the executor, the connection provider and the CLI.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	// logger is the global logger instance
	logger *slog.Logger
	// enabled indicates if debug logging is enabled
	enabled bool
	// mu protects the logger and enabled flag
	mu sync.RWMutex
)

func init() {
	logger = newLogger(io.Discard, false, false)
}

// Init switches debug logging on or off.
// Enabled, every record down to debug level is written to os.Stderr.
// Disabled, all records are discarded.
func Init(enable bool) {
	InitWriter(os.Stderr, enable, false)
}

// InitWriter is Init with an explicit destination and an optional JSON handler
func InitWriter(w io.Writer, enable, json bool) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enable
	logger = newLogger(w, enable, json)
}

// SetLogger replaces the global logger, for applications embedding the builder
// that already own a slog configuration
func SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()

	enabled = l.Enabled(context.Background(), slog.LevelDebug)
	logger = l
}

func newLogger(w io.Writer, enable, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if !enable {
		// above any level actually emitted
		opts.Level = slog.LevelError + 1
	}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Enabled returns whether debug logging is enabled
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
