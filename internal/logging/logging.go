package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(l string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}

// Init installs the default logger. level is a LOG_LEVEL value; an unknown or
// empty value falls back to fallback.
func Init(level string, fallback slog.Level) *slog.Logger {
	return InitWriter(os.Stderr, level, fallback)
}

// InitWriter is Init writing to w.
func InitWriter(w io.Writer, level string, fallback slog.Level) *slog.Logger {
	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: ParseLevel(level, fallback),
		}),
	)
	slog.SetDefault(logger)
	return logger
}
