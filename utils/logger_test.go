package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLoggerConfig(t *testing.T) {
	cfg := LoggerConfig(true, "bot.log")
	assert.True(t, cfg.Level.Enabled(zapcore.DebugLevel))
	assert.Equal(t, []string{"stdout", "bot.log"}, cfg.OutputPaths)
	assert.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)

	cfg = LoggerConfig(false, "")
	assert.False(t, cfg.Level.Enabled(zapcore.DebugLevel))
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}
