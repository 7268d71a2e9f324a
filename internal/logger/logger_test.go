package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_parseLevel(t *testing.T) {
	t.Run("valid value", func(t *testing.T) {
		tests := []struct {
			input    string
			expected slog.Level
		}{
			{"DEBUG", slog.LevelDebug},
			{"debug", slog.LevelDebug},
			{"Info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"ERROR", slog.LevelError},
		}

		for _, tt := range tests {
			t.Run(tt.input, func(t *testing.T) {
				got, err := parseLevel(tt.input)

				require.NoError(t, err)
				require.Equal(t, tt.expected, got)
			})
		}
	})

	t.Run("not valid", func(t *testing.T) {
		for _, value := range []string{"", "verbose"} {
			_, err := parseLevel(value)
			require.Error(t, err, "level %q should be rejected", value)
		}
	})
}

func TestLogger_New(t *testing.T) {
	t.Run("json in prod", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWithWriter(&buf, EnvProduction, LevelInfo)
		require.NoError(t, err)

		l.With("component", "guard").Info("refreshed", "subject", "u-1")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		require.Equal(t, "refreshed", record["msg"])
		require.Equal(t, "guard", record["component"])
		require.Equal(t, "u-1", record["subject"])

		source, ok := record["source"].(map[string]any)
		require.True(t, ok, "source must be attached")
		require.Equal(t, "logger_test.go", source["file"], "file must be trimmed to base name and point to the caller")
	})

	t.Run("text in dev", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWithWriter(&buf, EnvDevelopment, LevelDebug)
		require.NoError(t, err)

		l.WithGroup("channel").Debug("connected", "topic", "/topic/notifications/1")

		out := buf.String()
		require.Contains(t, out, "level=DEBUG")
		require.Contains(t, out, "channel.topic=/topic/notifications/1")
	})

	t.Run("level filters records", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWithWriter(&buf, EnvProduction, LevelWarn)
		require.NoError(t, err)

		l.Info("hidden")
		l.Warn("shown")

		require.Equal(t, 1, strings.Count(buf.String(), "\n"))
		require.Contains(t, buf.String(), "shown")
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := NewWithWriter(&bytes.Buffer{}, "staging", LevelInfo)
		require.Error(t, err)
	})
}

func TestLogger_NoOp(t *testing.T) {
	l := NewNoOpLogger()

	require.NotPanics(t, func() {
		l.With("a", 1).WithGroup("g").Error("nothing happens")
	})
}
