// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("console format colors the level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "e2e",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		logger.Named("popup").Info("Option selected.")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.Contains(t, out, palette["green"]+"INFO"+colorReset)
		assert.Contains(t, out, "e2e.popup.")
		assert.Contains(t, out, "Option selected.")
	})

	t.Run("json format is machine readable", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "e2e"}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		logger.Warn("Click succeeded via fallback.", zap.String("click", "synthetic"))
		require.NoError(t, logger.Sync())

		var entry map[string]any
		require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "e2e", entry["logger"])
		assert.Equal(t, "Click succeeded via fallback.", entry["msg"])
		assert.Equal(t, "synthetic", entry["click"])
	})

	t.Run("level filters debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
		require.NoError(t, err)
		logger.Debug("hidden")
		logger.Info("hidden too")
		assert.Empty(t, buf.String())
	})

	t.Run("invalid level is an error", func(t *testing.T) {
		_, err := NewLogger(config.LoggerConfig{Level: "chatty"}, zapcore.AddSync(&bytes.Buffer{}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("file core writes json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.log")
		logger, err := NewLogger(config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1}, zapcore.AddSync(&bytes.Buffer{}))
		require.NoError(t, err)

		logger.Error("This should go to the file.")
		require.NoError(t, logger.Sync())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"This should go to the file."`)
	})
}

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("only the first call wins", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, zapcore.AddSync(&buf))
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, zapcore.AddSync(&buf))

		assert.Same(t, first, GetLogger())
		GetLogger().Info("test")
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer
		Initialize(config.LoggerConfig{Level: "chatty", Format: "json"}, zapcore.AddSync(&buf))
		assert.Contains(t, buf.String(), "Falling back to info level.")
		assert.True(t, GetLogger().Core().Enabled(zapcore.InfoLevel))
		assert.False(t, GetLogger().Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})
}

func TestForScenario(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	ForScenario(logger, "run-1", "check-in").Info("Step passed.")

	var entry map[string]any
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "check-in", entry["scenario"])
	assert.Equal(t, "scenario", entry["logger"])
}
