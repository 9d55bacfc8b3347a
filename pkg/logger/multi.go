package logger

import (
	"context"
	"errors"
	"log/slog"
)

// fanoutHandler hands each record to every wrapped handler that accepts its
// level. The CLI uses it to keep pretty stderr output while also appending
// JSON records to a log file.
type fanoutHandler []slog.Handler

// Multi returns a logger that writes every record through the handlers of
// all given loggers.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	fan := make(fanoutHandler, 0, len(loggers))
	for _, l := range loggers {
		if l == nil {
			continue
		}
		fan = append(fan, l.Handler())
	}
	return slog.New(fan)
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanoutHandler) each(fn func(slog.Handler) slog.Handler) fanoutHandler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}
