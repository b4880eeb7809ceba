package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Level defaults to info;
// PROCTOR_LOG_LEVEL=debug enables capture-cycle tracing.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("PROCTOR_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
