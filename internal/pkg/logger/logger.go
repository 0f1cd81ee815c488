// Package logger configures the process-wide zap logger and bridges log/slog
// onto it, so services can log structured events without importing zap.
package logger

import (
	"log/slog"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level      string
	Format     string // "console" or "json"
	ToStdout   bool
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (o Options) normalized() Options {
	if o.Level == "" {
		o.Level = "info"
	}
	if o.Format != "json" {
		o.Format = "console"
	}
	if !o.ToStdout && o.FilePath == "" {
		o.ToStdout = true
	}
	if o.MaxSizeMB <= 0 {
		o.MaxSizeMB = 100
	}
	if o.MaxBackups <= 0 {
		o.MaxBackups = 10
	}
	if o.MaxAgeDays <= 0 {
		o.MaxAgeDays = 30
	}
	return o
}

var (
	mu     sync.RWMutex
	global *zap.Logger
)

// Init builds the global logger and installs the slog bridge. Safe to call
// again to reconfigure; the previous logger is flushed.
func Init(options Options) error {
	o := options.normalized()

	level, err := zapcore.ParseLevel(o.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if o.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sinks []zapcore.WriteSyncer
	if o.ToStdout {
		sinks = append(sinks, zapcore.AddSync(os.Stdout))
	}
	if o.FilePath != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   o.FilePath,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			MaxAge:     o.MaxAgeDays,
			Compress:   o.Compress,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), zap.NewAtomicLevelAt(level))
	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	prev := global
	global = zl
	mu.Unlock()

	slog.SetDefault(slog.New(newZapHandler(zl)))
	if prev != nil {
		_ = prev.Sync()
	}
	return nil
}

// L returns the global logger; a nop logger before Init.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return zap.NewNop()
	}
	return global
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		_ = global.Sync()
	}
}
