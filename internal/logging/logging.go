// Package logging builds the structured loggers used by pennant instances
// and the CLI.
//
// Loggers are [log/slog] JSON handlers. An embedded SDK instance stays
// quiet by default ([DefaultLevel] is "warn"); the CLI raises verbosity
// through configuration. Every instance logger carries an instance_id
// attribute so that logs from multiple instances in one process can be
// told apart.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// DefaultLevel is the minimum level for SDK instances constructed without
// an explicit logger.
const DefaultLevel = "warn"

// instanceIDKey is the attribute distinguishing instances in one process.
const instanceIDKey = "instance_id"

// New creates a logger that writes JSON to stderr at the given level.
// Accepted level strings (case-insensitive): "debug", "info", "warn",
// "error". Empty and unrecognised values fall back to "info".
func New(level string) *slog.Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter creates a logger writing JSON to w at the given level.
func NewWithWriter(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ForInstance derives an instance logger from base, stamping every record
// with the instance id. A nil base selects the default SDK logger at
// [DefaultLevel].
func ForInstance(base *slog.Logger, instanceID string) *slog.Logger {
	if base == nil {
		base = New(DefaultLevel)
	}
	return base.With(slog.String(instanceIDKey, instanceID))
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// ParseLevel converts a level string to a [slog.Level].
// Returns [slog.LevelInfo] for unrecognised values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
