// Package logger configures the process-wide structured logger.
//
// Every package logs through a *slog.Logger handed to it by its owner; this
// package only decides the handler, the level and the default instance.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLevel is the environment variable read for the initial log level.
const EnvLevel = "LOG_LEVEL"

// DefaultLogger is the logger used when a component is given none.
var DefaultLogger *slog.Logger

func init() {
	DefaultLogger = New(os.Stderr, ParseLevel(os.Getenv(EnvLevel)))
}

// New creates a text logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// SetLevel replaces DefaultLogger with one at the given level.
func SetLevel(level slog.Level) {
	DefaultLogger = New(os.Stderr, level)
	slog.SetDefault(DefaultLogger)
}

// SetVerbose switches between debug and info logging.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
		return
	}
	SetLevel(slog.LevelInfo)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDefault returns l, or DefaultLogger when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return DefaultLogger
	}
	return l
}
