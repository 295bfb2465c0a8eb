package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("dev", slog.LevelError))
	require.Equal(t, slog.LevelWarn, ParseLevel(" WARNING ", slog.LevelError))
	require.Equal(t, slog.LevelError, ParseLevel("prod", slog.LevelInfo))
	require.Equal(t, slog.LevelInfo, ParseLevel("", slog.LevelInfo))
	require.Equal(t, slog.LevelError, ParseLevel("loud", slog.LevelError))
}

func TestInitWriterFiltersBelowLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := InitWriter(&buf, "warn", slog.LevelInfo)
	logger.Info("hidden")
	slog.Warn("shown", "room", "R1")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "room=R1")
}
