package logger

import (
	"bytes"

	"github.com/fghsg9075-lab/aios/internal/cli"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var fieldBuffers = buffer.NewPool()

// coloredConsoleEncoder is zap's console encoder with the trailing field
// object highlighted, so attempt logs (provider, credential, outcome) stand out.
type coloredConsoleEncoder struct {
	zapcore.Encoder
}

func NewColoredConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &coloredConsoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (c *coloredConsoleEncoder) Clone() zapcore.Encoder {
	return &coloredConsoleEncoder{Encoder: c.Encoder.Clone()}
}

func (c *coloredConsoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line, err := c.Encoder.EncodeEntry(ent, fields)
	if err != nil {
		return nil, err
	}

	// the console encoder appends the field object after a tab
	raw := line.Bytes()
	at := bytes.Index(raw, []byte("\t{"))
	if at < 0 || !cli.Enabled() {
		return line, nil
	}

	out := fieldBuffers.Get()
	out.Write(raw[:at+1])
	out.AppendString(cli.HighlightJSON(string(raw[at+1:])))
	line.Free()
	return out, nil
}
