// Package logger carries a zap logger in a context.Context.
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey struct{}

var key = contextKey{}

// FromContext returns the Logger stored in ctx.
// If no logger is found, a no-op logger is returned.
func FromContext(ctx context.Context) *zap.Logger {
	l, ok := ctx.Value(key).(*zap.Logger)
	if !ok || l == nil {
		return zap.NewNop()
	}
	return l
}

// NewContext returns a new Context, derived from ctx, which carries the
// provided Logger.
func NewContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, key, l)
}

// New builds the process logger. Debug mode uses zap's development config;
// otherwise JSON with ISO8601 timestamps and no stack traces, on stderr.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return config.Build()
}
