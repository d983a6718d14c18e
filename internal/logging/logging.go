// Package logging provides the structured logger threaded through every
// component via AppContext. It is a thin sugared-zap wrapper offering the
// same Debugw/Infow/Warnw/Errorw call shape used throughout this codebase.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the call surface every component depends on.
type Logger struct {
	z *zap.SugaredLogger
}

// New builds a Logger. development=true selects a human-readable console
// encoder at debug level; otherwise JSON at info level, suitable for
// production log aggregation.
func New(development bool) *Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Logging construction failing is unrecoverable at startup.
		os.Stderr.WriteString("logging: failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	return &Logger{z: z.Sugar()}
}

func (l *Logger) Debug(msg string)                       { l.z.Debug(msg) }
func (l *Logger) Debugw(msg string, kv ...interface{})    { l.z.Debugw(msg, kv...) }
func (l *Logger) Info(msg string)                        { l.z.Info(msg) }
func (l *Logger) Infow(msg string, kv ...interface{})     { l.z.Infow(msg, kv...) }
func (l *Logger) Warn(msg string)                        { l.z.Warn(msg) }
func (l *Logger) Warnw(msg string, kv ...interface{})     { l.z.Warnw(msg, kv...) }
func (l *Logger) Error(msg string)                       { l.z.Error(msg) }
func (l *Logger) Errorw(msg string, kv ...interface{})    { l.z.Errorw(msg, kv...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.z.Errorf(format, args...) }

// With returns a child logger with the given key/value pairs bound to
// every subsequent entry, for per-request or per-component context.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{z: l.z.With(kv...)}
}

// Sync flushes any buffered log entries. Call once at shutdown.
func (l *Logger) Sync() error { return l.z.Sync() }
