package logger

import (
	"context"
	"io"
	"log/slog"
)

const ansiReset = "\033[0m"

// Level colors for the controller's interactive stderr output: reconcile
// chatter stays green/cyan, workload failures stand out red.
var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\033[36m",
	slog.LevelInfo:  "\033[32m",
	slog.LevelWarn:  "\033[33m",
	slog.LevelError: "\033[31m",
}

// colorHandler decorates a slog.TextHandler with an ANSI-colored level tag on
// the message. Attrs and groups pass through to the wrapped handler.
type colorHandler struct {
	inner slog.Handler
	color bool
}

func newColorHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *colorHandler {
	return &colorHandler{inner: slog.NewTextHandler(w, opts), color: color}
}

func (h *colorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	tag := r.Level.String()
	if c, ok := levelColors[r.Level]; ok && h.color {
		tag = c + tag + ansiReset
	}
	r.Message = tag + "  " + r.Message
	return h.inner.Handle(ctx, r)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{inner: h.inner.WithAttrs(attrs), color: h.color}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{inner: h.inner.WithGroup(name), color: h.color}
}
