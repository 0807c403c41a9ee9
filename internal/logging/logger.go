package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func New(logLevel string, json bool) *slog.Logger {
	return NewWriter(os.Stdout, logLevel, json)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, logLevel string, json bool) *slog.Logger {
	level := parseLevel(logLevel)
	opts := &slog.HandlerOptions{Level: level, AddSource: true}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(s string) slog.Level {
	s = strings.ToLower(s)
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
