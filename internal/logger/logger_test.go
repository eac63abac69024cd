package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	assert.Zero(t, buf.Len(), "info must be filtered at warn level")

	log.Warn("decode failed", "step", 3)
	assert.Contains(t, buf.String(), `"msg":"decode failed"`)
	assert.Contains(t, buf.String(), `"step":3`)
}

func TestNewFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"hello"`},
		{"text", "msg=hello"},
		{"pretty", "INFO  hello"},
		{"", "INFO  hello"},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log, err := NewFormat(&buf, tc.format, slog.LevelInfo)
		require.NoError(t, err, tc.format)
		log.Info("hello")
		assert.Contains(t, buf.String(), tc.want, tc.format)
	}

	_, err := NewFormat(&bytes.Buffer{}, "xml", slog.LevelInfo)
	assert.Error(t, err)
}

func TestWithAndGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo).With("component", "decoder").WithGroup("run")
	log.Info("step", "live", 4)

	assert.Contains(t, buf.String(), `"component":"decoder"`)
	assert.Contains(t, buf.String(), `"run":{"live":4}`)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	assert.Contains(t, buf.String(), "roundtrip")

	assert.NotNil(t, FromContext(context.Background()))
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { Discard().Error("nothing", "k", "v") })
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if tc.wantErr {
			assert.Error(t, err, tc.input)
		} else {
			assert.NoError(t, err, tc.input)
		}
		assert.Equal(t, tc.want, got, tc.input)
	}
}

func TestPrettyNoColourOffTerminal(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Pretty(&buf, slog.LevelInfo).Info("plain", "key", "value")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestPrettyForcedColour(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil).SetColor(true)
	slog.New(h).Error("red")
	assert.Contains(t, buf.String(), colorRed)
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestPrettyAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	l := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "decode")}).WithGroup("a").WithGroup("b"))
	l.Info("done",
		"msg", "hello world",
		"strategy", "beam_search",
		"score", -0.123456789,
		"duration", 1500*time.Microsecond+7*time.Nanosecond,
	)

	out := buf.String()
	for _, want := range []string{
		"service=decode",
		`a.b.msg="hello world"`,
		"a.b.strategy=beam_search",
		"a.b.score=-0.123457",
		"a.b.duration=1.5ms",
	} {
		assert.Contains(t, out, want)
	}
}

func TestPrettyEmptyGroup(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	assert.Same(t, h, h.WithGroup(""))
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"simple", false},
		{"has space", true},
		{"has\ttab", true},
		{`has"quote`, true},
		{"k=v", true},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, needsQuoting(tc.input), tc.input)
	}
}
