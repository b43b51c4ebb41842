package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	f, err := ParseLogFormat("Text")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseLogFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseLogFormat("xml")
	assert.Error(t, err)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{
		Level:     LevelInfo,
		Format:    FormatJSON,
		Output:    &buf,
		Component: "settings",
		Fields:    map[string]any{"store": "file"},
	})

	logger.Debug("hidden")
	logger.Info("saved", "name", "app")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "saved", record["msg"])
	assert.Equal(t, "classify", record["service"])
	assert.Equal(t, "settings", record["component"])
	assert.Equal(t, "file", record["store"])
	assert.Equal(t, "app", record["name"])
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: LevelWarn, Format: FormatConsole, Output: &buf})

	logger.Info("hidden")
	logger.Warn("careful", "path", "a.json")

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "service=classify")
	assert.Contains(t, out, "path=a.json")
	assert.NotContains(t, out, "hidden")
}

func TestNewProductionLoggerFromEnv(t *testing.T) {
	t.Setenv("CLASSIFY_LOG_LEVEL", "error")
	t.Setenv("CLASSIFY_LOG_FORMAT", "text")

	logger := NewProductionLogger("cli")
	assert.False(t, logger.Enabled(context.Background(), LevelWarn.slogLevel()))
	assert.True(t, logger.Enabled(context.Background(), LevelError.slogLevel()))
}
