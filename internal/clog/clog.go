// Package clog provides a small leveled logger passed explicitly through the
// compiler's components, rather than written to stdout ad hoc.
package clog

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with fields convenient for the compiler's phases:
// a scenery area, a source file, a phase name.
type Logger struct {
	base *slog.Logger
}

// New creates a Logger writing leveled text records to w (os.Stderr if nil).
func New(w *os.File) *Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{base: slog.New(h)}
}

// With returns a Logger that annotates every record with the given key/value
// pairs, following slog's alternating key-value convention.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.base.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.base.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.base.Error(msg, args...) }

type ctxKey struct{}

// WithContext stashes the logger on ctx for components that only carry a
// context.Context across call boundaries.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stashed on ctx, or a default stderr logger
// if none was set.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return New(nil)
}
