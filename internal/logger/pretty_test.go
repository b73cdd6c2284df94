package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrettyEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))

	assert.True(t, NewPrettyHandler(&bytes.Buffer{}, nil).Enabled(context.Background(), slog.LevelInfo))
}

func TestPrettyFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Pretty(&buf, slog.LevelInfo).Info("forward done", "batch", 4, "device", "cuda:0")

	out := buf.String()
	assert.Contains(t, out, "INFO ")
	assert.Contains(t, out, "forward done")
	assert.Contains(t, out, "batch=4")
	assert.Contains(t, out, "device=cuda:0")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestPrettyWithAttrsAndGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)

	slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "test")})).Info("with attrs")
	assert.Contains(t, buf.String(), "service=test")

	buf.Reset()
	slog.New(h.WithGroup("a").WithGroup("b")).Info("nested", "key", "val")
	assert.Contains(t, buf.String(), "a.b.key=val")

	buf.Reset()
	slog.New(h.WithGroup("g").WithAttrs([]slog.Attr{slog.Int("n", 1)})).Info("bound")
	assert.Contains(t, buf.String(), "g.n=1")

	buf.Reset()
	slog.New(h).Info("inline", slog.Group("req", slog.Int("rows", 2), slog.Int("cols", 3)))
	assert.Contains(t, buf.String(), "req.rows=2 req.cols=3")
}

func TestPrettyEmptyGroupReturnsSameHandler(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	assert.Same(t, h, h.WithGroup(""))
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))

	log.Info("test", "msg", "hello world", "key", "simple")
	out := buf.String()
	assert.Contains(t, out, `msg="hello world"`)
	assert.Contains(t, out, "key=simple")
	assert.NotContains(t, out, `key="simple"`)
}
