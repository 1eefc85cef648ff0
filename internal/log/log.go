// Package log wraps zap with the field-constructor call shape the rest of
// the broker uses: New(), logger.With(fields...), and level methods that
// take a message plus structured fields.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging field.
type Field = zap.Field

// String builds a string field.
func String(key, val string) Field { return zap.String(key, val) }

// Int32 builds an int32 field.
func Int32(key string, val int32) Field { return zap.Int32(key, val) }

// Int64 builds an int64 field.
func Int64(key string, val int64) Field { return zap.Int64(key, val) }

// Error builds a named error field (the teacher's log.Error takes a key,
// unlike zap.Error, so errors can be labeled "error" or something more
// specific at the call site).
func Error(key string, err error) Field { return zap.NamedError(key, err) }

// Duration builds a duration field.
func Duration(key string, val interface{ String() string }) Field {
	return zap.String(key, val.String())
}

// Logger is the structured logger used across the broker.
type Logger struct {
	z *zap.Logger
}

// New builds a production-style logger writing to stderr.
func New() Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stderr), zapcore.DebugLevel)
	return Logger{z: zap.New(core)}
}

// With returns a logger that always includes the given fields.
func (l Logger) With(fields ...Field) Logger {
	return Logger{z: l.z.With(fields...)}
}

func (l Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// Sync flushes any buffered log entries.
func (l Logger) Sync() error { return l.z.Sync() }
