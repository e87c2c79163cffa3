package logger

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler hands each record to every handler that accepts its level.
type teeHandler []slog.Handler

// Tee returns a logger writing to all of loggers, e.g. the terminal and a
// JSON log file. Nil loggers are skipped. A failing output does not keep the
// record from the others; their errors are joined.
func Tee(loggers ...*slog.Logger) *slog.Logger {
	var t teeHandler
	for _, l := range loggers {
		if l != nil {
			t = append(t, l.Handler())
		}
	}
	if len(t) == 1 {
		return slog.New(t[0])
	}
	return slog.New(t)
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}
