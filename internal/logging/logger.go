package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the leveled structured logger every component receives.
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// LevelFromString converts a string to a zap level. Unknown values fall back to warn.
func LevelFromString(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "fatal":
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// New builds a sugared zap logger writing to w. format is "json" or "console".
func New(level, format string, w io.Writer) *zap.SugaredLogger {
	if w == nil {
		w = os.Stderr
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(LevelFromString(level)))
	return zap.New(core).Sugar()
}

// NewNop returns a logger that discards everything
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

var (
	mu           sync.RWMutex
	globalLogger Logger = New("warn", "console", os.Stderr)
)

// SetLogger replaces the process-wide logger. nil is ignored.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// GetLogger returns the process-wide logger
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// OrGlobal returns l, or the process-wide logger when l is nil
func OrGlobal(l Logger) Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}

// With returns a logger that adds keysAndValues to every entry
func With(l Logger, keysAndValues ...interface{}) Logger {
	l = OrGlobal(l)
	if z, ok := l.(*zap.SugaredLogger); ok {
		return z.With(keysAndValues...)
	}
	return fieldLogger{base: l, fields: keysAndValues}
}

type fieldLogger struct {
	base   Logger
	fields []interface{}
}

func (f fieldLogger) merge(kv []interface{}) []interface{} {
	return append(append([]interface{}(nil), f.fields...), kv...)
}

func (f fieldLogger) Debugw(msg string, kv ...interface{}) { f.base.Debugw(msg, f.merge(kv)...) }
func (f fieldLogger) Infow(msg string, kv ...interface{})  { f.base.Infow(msg, f.merge(kv)...) }
func (f fieldLogger) Warnw(msg string, kv ...interface{})  { f.base.Warnw(msg, f.merge(kv)...) }
func (f fieldLogger) Errorw(msg string, kv ...interface{}) { f.base.Errorw(msg, f.merge(kv)...) }
