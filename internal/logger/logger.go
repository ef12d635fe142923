// Package logger wraps log/slog behind a small interface so every component
// logs through an injected collaborator instead of the global slog default,
// matching the teacher repo's internal/logger package.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is the structured logger every component depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

// options configures New.
type options struct {
	debug  bool
	format string
	quiet  bool
	file   *os.File
}

// Option configures a Logger built by New.
type Option func(*options)

// WithDebug enables debug-level logging.
func WithDebug() Option { return func(o *options) { o.debug = true } }

// WithFormat selects the slog handler: "json" or "text" (default).
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithQuiet discards everything below Warn.
func WithQuiet() Option { return func(o *options) { o.quiet = true } }

// WithLogFile tees output to the given file in addition to stderr.
func WithLogFile(f *os.File) Option { return func(o *options) { o.file = f } }

// New builds a Logger from the given options.
func New(opts ...Option) Logger {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	if o.quiet {
		level = slog.LevelWarn
	}

	var w io.Writer = os.Stderr
	if o.file != nil {
		w = io.MultiWriter(os.Stderr, o.file)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if o.format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return &slogLogger{l: slog.New(handler)}
}

// Default is a Logger suitable for use before a configured Logger is
// available (package init, tests).
var Default Logger = New()

type ctxKey struct{}

// WithContext attaches l to ctx so it can be retrieved with FromContext.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves a Logger attached by WithContext, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return Default
}
