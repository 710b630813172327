package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildrelay/guildrelay/common/middleware"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  slog.Level
		format string
	}{
		{name: "json format with info level", level: slog.LevelInfo, format: "json"},
		{name: "text format with debug level", level: slog.LevelDebug, format: "text"},
		{name: "default format with error level", level: slog.LevelError, format: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level, tt.format)
			require.NotNil(t, logger)
			require.NotNil(t, logger.Logger)
		})
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	logger.Info("delivered", EventType("messageCreate"), Status(200))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "delivered", entry["msg"])
	assert.Equal(t, "messageCreate", entry[FieldEventType])
	assert.EqualValues(t, 200, entry[FieldStatus])
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "text")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	ctx := middleware.WithID(context.Background(), "corr-123")
	logger.InfoContext(ctx, "with id")
	assert.Contains(t, buf.String(), `"correlation_id":"corr-123"`)

	buf.Reset()
	logger.InfoContext(context.Background(), "without id")
	assert.NotContains(t, buf.String(), FieldCorrelationID)
}

func TestContextLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelDebug, "json")
	ctx := context.Background()

	logger.DebugContext(ctx, "d")
	logger.WarnContext(ctx, "w")
	logger.ErrorContext(ctx, "e")

	out := buf.String()
	assert.Contains(t, out, `"level":"DEBUG"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"level":"ERROR"`)
}

func TestWithAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	logger.With(Service("guildrelay")).WithGroup("relay").Info("ready", "count", 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "guildrelay", entry[FieldService])
	group, ok := entry["relay"].(map[string]any)
	require.True(t, ok, "expected relay group in %s", buf.String())
	assert.EqualValues(t, 1, group["count"])
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	require.NotNil(t, logger)
	logger.Error("nothing should happen")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestSetDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(&buf, slog.LevelInfo, "text"))
	slog.Info("through default")

	assert.True(t, strings.Contains(buf.String(), "through default"))
}
