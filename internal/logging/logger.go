// Package logging provides a tiny abstraction over slog so the rest of the
// app can depend on a minimal interface while the binary decides where logs
// go (a file under the data directory by default, so log output never fights
// the terminal UI for the screen).
package logging

import (
	"io"
	"log/slog"
)

// Logger is the minimal structured logging interface used across Marlin.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// slogAdapter wraps *slog.Logger to implement Logger.
type slogAdapter struct {
	*slog.Logger
}

// New builds a JSON logger writing to w at the given level, tagged with a
// component attribute.
func New(w io.Writer, level slog.Level, component string) Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &slogAdapter{slog.New(h).With("component", component)}
}

// FromSlog adapts an existing *slog.Logger.
func FromSlog(l *slog.Logger) Logger { return &slogAdapter{l} }

// Discard returns a Logger that drops everything. Handy in tests.
func Discard() Logger {
	return &slogAdapter{slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
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
