// Package logging provides the sync engine's structured logger, adapted
// from the teacher's pkg/logger: a single slog.Logger, configured once at
// startup from a textual level and shared process-wide.
package logging

import (
	"fmt"
	"log/slog"
	"os"
)

var global *slog.Logger

// Init configures the process-wide logger at the given level ("debug",
// "info", "warn" or "error") and installs it as slog's default.
func Init(level string) error {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info", "":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("logging: invalid log level: %s", level)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	global = slog.New(handler)
	slog.SetDefault(global)
	return nil
}

// Get returns the process-wide logger, falling back to slog's own default
// if Init was never called.
func Get() *slog.Logger {
	if global == nil {
		return slog.Default()
	}
	return global
}
