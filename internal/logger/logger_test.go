package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// captureStderr swaps os.Stderr while fn runs and returns what was written
func captureStderr(t *testing.T, fn func()) (stdout string, stderr string) {
	t.Helper()

	origOut, origErr := os.Stdout, os.Stderr
	t.Cleanup(func() { os.Stdout, os.Stderr = origOut, origErr })

	rOut, wOut, err := os.Pipe()
	require.NoError(t, err)
	rErr, wErr, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout, os.Stderr = wOut, wErr
	fn()
	os.Stdout, os.Stderr = origOut, origErr

	require.NoError(t, wOut.Close())
	require.NoError(t, wErr.Close())

	outBytes, err := io.ReadAll(rOut)
	require.NoError(t, err)
	errBytes, err := io.ReadAll(rErr)
	require.NoError(t, err)

	return string(outBytes), string(errBytes)
}

func TestLogger_parseLevel(t *testing.T) {
	t.Run("known levels", func(t *testing.T) {
		tests := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"DEBUG", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"Info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"WARN", slog.LevelWarn},
			{"error", slog.LevelError},
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

	t.Run("unknown levels", func(t *testing.T) {
		for _, value := range []string{"", "verbose", "warning"} {
			_, err := parseLevel(value)
			require.Error(t, err, "level %q must be rejected", value)
		}
	})
}

func TestLogger_New(t *testing.T) {
	t.Run("dev is text", func(t *testing.T) {
		_, stderr := captureStderr(t, func() {
			l, err := New(EnvDevelopment, LevelInfo)
			require.NoError(t, err)

			l.Info("hello", "username", "broker")
		})

		require.Contains(t, stderr, "msg=hello")
		require.Contains(t, stderr, "username=broker")
	})

	t.Run("prod is json", func(t *testing.T) {
		_, stderr := captureStderr(t, func() {
			l, err := New(EnvProduction, LevelInfo)
			require.NoError(t, err)

			l.Info("hello", "username", "broker")
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(stderr), &entry))
		require.Equal(t, "hello", entry["msg"])
		require.Equal(t, "broker", entry["username"])
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging", LevelInfo)

		require.Error(t, err)
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := New(EnvProduction, "loud")

		require.Error(t, err)
	})
}

func TestLogger_NewJSONLogger(t *testing.T) {
	stdout, stderr := captureStderr(t, func() {
		l, err := NewJSONLogger(LevelInfo)
		require.NoError(t, err)

		l.Warn("login failed", "username", "nobody")
	})

	require.Empty(t, stdout, "logs go to stderr only")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(stderr), &entry))
	require.Equal(t, "WARN", entry["level"])
	require.Equal(t, "nobody", entry["username"])

	source, ok := entry["source"].(map[string]any)
	require.True(t, ok, "source must be attached")
	require.Equal(t, "logger_test.go", source["file"], "source must point to the caller, without directory")
}

func TestLogger_NewNoOpLogger(t *testing.T) {
	stdout, stderr := captureStderr(t, func() {
		l := NewNoOpLogger()
		l.Debug("debug")
		l.Info("info")
		l.Warn("warn")
		l.Error("error")
	})

	require.Empty(t, stdout)
	require.Empty(t, stderr)
}

func TestLogger_Levels(t *testing.T) {
	logAll := func(l Logger) {
		l.Debug("at-debug")
		l.Info("at-info")
		l.Warn("at-warn")
		l.Error("at-error")
	}

	tests := []struct {
		level   string
		written []string
		skipped []string
	}{
		{LevelDebug, []string{"at-debug", "at-info", "at-warn", "at-error"}, nil},
		{LevelInfo, []string{"at-info", "at-warn", "at-error"}, []string{"at-debug"}},
		{LevelWarn, []string{"at-warn", "at-error"}, []string{"at-debug", "at-info"}},
		{LevelError, []string{"at-error"}, []string{"at-debug", "at-info", "at-warn"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			_, stderr := captureStderr(t, func() {
				l, err := NewTextLogger(tt.level)
				require.NoError(t, err)
				logAll(l)
			})

			for _, msg := range tt.written {
				require.Contains(t, stderr, msg)
			}
			for _, msg := range tt.skipped {
				require.NotContains(t, stderr, msg)
			}
		})
	}
}

func TestLogger_WithAndGroup(t *testing.T) {
	_, stderr := captureStderr(t, func() {
		l, err := NewTextLogger(LevelInfo)
		require.NoError(t, err)

		l.With("operation", "login").WithGroup("request").Info("done", "status", 200)
	})

	line := strings.TrimSpace(stderr)
	require.Contains(t, line, "operation=login")
	require.Contains(t, line, "request.status=200")
}
