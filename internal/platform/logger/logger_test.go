package logger

import (
	"testing"

	"github.com/fghsg9075-lab/aios/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNew_Formats(t *testing.T) {
	for _, cfg := range []Config{
		{Level: "debug", Format: "json"},
		{Level: "info", Format: "console"},
		{Level: "warn", Format: "console", EnableColor: true},
	} {
		l, level, err := New(cfg)
		require.NoError(t, err, cfg.Format)
		assert.Equal(t, parseLevel(cfg.Level), level.Level())
		_ = l.Sync()
	}
	cli.SetEnabled(true)
}

func TestColoredConsoleEncoder_HighlightsFields(t *testing.T) {
	cli.SetEnabled(true)
	enc := NewColoredConsoleEncoder(zapcore.EncoderConfig{MessageKey: "msg", ConsoleSeparator: "\t"})

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "dispatch"}, []zapcore.Field{zap.String("provider", "groq")})
	require.NoError(t, err)
	defer buf.Free()

	assert.Contains(t, buf.String(), cli.Blue+`"provider"`+cli.Reset+":")
	assert.Contains(t, buf.String(), cli.Green+`"groq"`+cli.Reset)
}
