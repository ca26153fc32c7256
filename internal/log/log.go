// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log mirrors the teacher's log.Logger/log.Helper shape: a
// one-method Logger interface (Log(level, keyvals...)), a NewFilter that
// drops anything below a configured level, and a Helper adding the
// Debugf/Infof/Warnf/Errorf surface every component calls. The concrete
// backing logger is go.uber.org/zap; a component takes a *Helper (never a
// concrete zap type) and falls back to an error-only helper when the
// caller supplies none, exactly as pe.New does for its own log.Logger.
package log

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Level mirrors the teacher's log.Level enum, lowest severity first so
// FilterLevel's "drop anything below" comparison is a plain less-than.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the single-method interface every component depends on: a
// level plus alternating key/value pairs, mirroring the teacher's
// log.Logger so a caller can plug in any backend behind it.
type Logger interface {
	Log(level Level, keyvals ...any) error
}

// stdLogger writes "LEVEL key=val key=val" lines to an io.Writer. It is
// the teacher's fallback logger for callers that supply no backend at
// all; everything in this module's own components gets a zap-backed
// Logger instead.
type stdLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdLogger returns a Logger that writes plain level-prefixed lines to
// w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{w: w}
}

func (l *stdLogger) Log(level Level, keyvals ...any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprint(l.w, level.String()); err != nil {
		return err
	}
	for i := 0; i+1 < len(keyvals); i += 2 {
		if _, err := fmt.Fprintf(l.w, " %v=%v", keyvals[i], keyvals[i+1]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(l.w)
	return err
}

// zapLogger adapts a *zap.Logger to Logger, the backend every component
// in this tree actually runs on.
type zapLogger struct {
	l *zap.Logger
}

// NewZapLogger wraps an existing zap logger as a Logger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{l: l}
}

func (z *zapLogger) Log(level Level, keyvals ...any) error {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(keyvals[i]), keyvals[i+1]))
	}
	switch level {
	case LevelDebug:
		z.l.Debug("", fields...)
	case LevelInfo:
		z.l.Info("", fields...)
	case LevelWarn:
		z.l.Warn("", fields...)
	default:
		z.l.Error("", fields...)
	}
	return nil
}

// Sync flushes the wrapped zap core's buffers.
func (z *zapLogger) Sync() error { return z.l.Sync() }

// Option configures a filter built by NewFilter.
type Option func(*filter)

// FilterLevel drops any Log call below level. The zero Level (LevelDebug)
// filters nothing.
func FilterLevel(level Level) Option {
	return func(f *filter) { f.level = level }
}

// filter wraps a Logger, dropping calls below a configured level before
// they reach it.
type filter struct {
	Logger
	level Level
}

// NewFilter wraps logger so Log calls below the level set by FilterLevel
// (LevelDebug, i.e. unfiltered, if no Option is given) never reach it.
func NewFilter(logger Logger, opts ...Option) Logger {
	f := &filter{Logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, keyvals ...any) error {
	if level < f.level {
		return nil
	}
	return f.Logger.Log(level, keyvals...)
}

// Sync forwards to the wrapped Logger's Sync method, if it has one; a
// filter around a NewStdLogger (which has none) is a harmless no-op.
func (f *filter) Sync() error {
	if s, ok := f.Logger.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// Helper adapts a Logger to the Debugf/Infof/Warnf/Errorf surface every
// component calls, mirroring the teacher's log.Helper.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in a Helper.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

// Log forwards to the wrapped Logger directly, for callers that want the
// raw keyvals form rather than a formatted message.
func (h *Helper) Log(level Level, keyvals ...any) error { return h.logger.Log(level, keyvals...) }

func (h *Helper) Debug(args ...any) { h.logger.Log(LevelDebug, "msg", fmt.Sprint(args...)) }
func (h *Helper) Debugf(format string, args ...any) {
	h.logger.Log(LevelDebug, "msg", fmt.Sprintf(format, args...))
}
func (h *Helper) Info(args ...any) { h.logger.Log(LevelInfo, "msg", fmt.Sprint(args...)) }
func (h *Helper) Infof(format string, args ...any) {
	h.logger.Log(LevelInfo, "msg", fmt.Sprintf(format, args...))
}
func (h *Helper) Warn(args ...any) { h.logger.Log(LevelWarn, "msg", fmt.Sprint(args...)) }
func (h *Helper) Warnf(format string, args ...any) {
	h.logger.Log(LevelWarn, "msg", fmt.Sprintf(format, args...))
}
func (h *Helper) Error(args ...any) { h.logger.Log(LevelError, "msg", fmt.Sprint(args...)) }
func (h *Helper) Errorf(format string, args ...any) {
	h.logger.Log(LevelError, "msg", fmt.Sprintf(format, args...))
}

// Sync flushes the underlying logger's buffers, if it supports one
// (zap-backed loggers, and filters wrapping them, do).
func (h *Helper) Sync() error {
	if s, ok := h.logger.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// NewProduction builds a Helper backed by zap's JSON production config,
// filtered to the given minimum level.
func NewProduction(min Level) (*Helper, error) {
	zl, err := zap.NewProductionConfig().Build()
	if err != nil {
		return nil, err
	}
	return NewHelper(NewFilter(NewZapLogger(zl), FilterLevel(min))), nil
}

// Noop returns a Helper that discards everything below LevelError, the
// default used when a component's Options carries no Logger.
func Noop() *Helper {
	h, err := NewProduction(LevelError)
	if err != nil {
		// zap's production config cannot fail to build with a valid level.
		panic(err)
	}
	return h
}
