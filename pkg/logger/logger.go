// Package logger provides the structured, leveled logging used throughout
// this module, built on log/slog. It keeps the env-var-driven level
// selection of the original logger but swaps printf-style messages for
// slog's structured key/value attributes, since every caller in this
// module logs around a room, page, or commit id that's worth filtering on.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.Mutex
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// Init reconfigures the package logger from LOG_LEVEL (debug, info, warn,
// error; default info). Call it once at process startup; it is safe to
// call again in tests that need to capture output at a different level.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelFromEnv()}))
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func current() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Debug logs at debug level with structured key/value args.
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// Info logs at info level with structured key/value args.
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// Warn logs at warn level with structured key/value args.
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// Error logs at error level with structured key/value args.
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}
