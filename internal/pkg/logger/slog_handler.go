package logger

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapHandler forwards slog records to the zap core so that both logging
// surfaces share one configuration and one set of sinks.
type zapHandler struct {
	l      *zap.Logger
	prefix string
	fields []zap.Field
}

func newZapHandler(l *zap.Logger) *zapHandler {
	return &zapHandler{l: l.WithOptions(zap.AddCallerSkip(3))}
}

func slogLevelToZap(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func (h *zapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.l.Core().Enabled(slogLevelToZap(level))
}

func (h *zapHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zap.Field, 0, len(h.fields)+record.NumAttrs())
	fields = append(fields, h.fields...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, zap.Any(h.prefix+attr.Key, attr.Value.Any()))
		return true
	})

	switch slogLevelToZap(record.Level) {
	case zapcore.ErrorLevel:
		h.l.Error(record.Message, fields...)
	case zapcore.WarnLevel:
		h.l.Warn(record.Message, fields...)
	case zapcore.InfoLevel:
		h.l.Info(record.Message, fields...)
	default:
		h.l.Debug(record.Message, fields...)
	}
	return nil
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = make([]zap.Field, 0, len(h.fields)+len(attrs))
	next.fields = append(next.fields, h.fields...)
	for _, attr := range attrs {
		next.fields = append(next.fields, zap.Any(h.prefix+attr.Key, attr.Value.Any()))
	}
	return &next
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
