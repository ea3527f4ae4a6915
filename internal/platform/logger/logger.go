// Package logger constructs the process-wide structured logger. Every
// component takes a *slog.Logger at construction time rather than reaching
// for a package-level global.
package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON structured logger writing to stdout, suitable for
// ingestion by a log pipeline. Level defaults to info; set LOG_LEVEL=debug
// to get per-request pipeline step tracing.
func New(levelName string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}
