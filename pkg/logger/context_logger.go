package logger

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
	connectionIDKey
)

// WithRequestID stores the request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithUserID stores the user id in ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// WithConnectionID stores the websocket connection id in ctx.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connectionIDKey, id)
}

// RequestIDFrom returns the request id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextLogger decorates log lines with identifiers carried in a context.
type ContextLogger struct {
	logger *zap.SugaredLogger
}

// NewContextLogger wraps logger with ctx-aware helpers.
func NewContextLogger(logger *zap.SugaredLogger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// For returns a logger carrying trace_id, request_id, user_id and
// connection_id when present in ctx.
func (cl *ContextLogger) For(ctx context.Context) *zap.SugaredLogger {
	var kv []interface{}

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		kv = append(kv, "trace_id", sc.TraceID().String())
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		kv = append(kv, "request_id", id)
	}
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		kv = append(kv, "user_id", id)
	}
	if id, ok := ctx.Value(connectionIDKey).(string); ok && id != "" {
		kv = append(kv, "connection_id", id)
	}

	if len(kv) == 0 {
		return cl.logger
	}
	return cl.logger.With(kv...)
}

// LogRequest logs a completed HTTP request.
func (cl *ContextLogger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	l := cl.For(ctx)
	kv := []interface{}{
		"method", method,
		"path", path,
		"status", statusCode,
		"duration_ms", duration.Milliseconds(),
	}
	switch {
	case statusCode >= 500:
		l.Errorw("http_request", kv...)
	case statusCode >= 400:
		l.Warnw("http_request", kv...)
	default:
		l.Infow("http_request", kv...)
	}
}

// LogError logs err with the ids found in ctx.
func (cl *ContextLogger) LogError(ctx context.Context, err error, message string, kv ...interface{}) {
	cl.For(ctx).Errorw(message, append(kv, "error", err)...)
}
