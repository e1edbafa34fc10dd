package log

import (
	"context"
	"os"

	"go.uber.org/zap"
)

type ctxKey string

const (
	sessionIDKey ctxKey = "session_id"
	requestIDKey ctxKey = "request_id"
)

var logger *zap.Logger

func init() {
	if os.Getenv("DEBUG") == "true" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
}

// SetLogger replaces the package logger, e.g. with zap.NewNop() in tests.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

// WithSessionID attaches the session id to ctx for WithCtx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithRequestID attaches the request id to ctx for WithCtx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithCtx(ctx context.Context) *zap.Logger {
	fields := []zap.Field{}

	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("session_id", v))
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("request_id", v))
	}

	return logger.With(fields...)
}

func With(fields ...zap.Field) *zap.Logger {
	return logger.With(fields...)
}

func Sync() {
	_ = logger.Sync()
}
