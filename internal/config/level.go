package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// ParseLogLevel maps debug|info|warn|error (case-insensitive) to a slog.Level.
// The empty string maps to DefaultLogLevel.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", raw)
	}
}
