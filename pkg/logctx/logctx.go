package logctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ctxKey string

const (
	loggerKey  ctxKey = "logger"
	traceIDKey ctxKey = "traceID"
	eventIDKey ctxKey = "eventID"

	// GinLoggerKey and GinTraceIDKey are the gin.Context keys set by the HTTP middleware.
	GinLoggerKey  = "logger"
	GinTraceIDKey = "traceID"
)

// WithLogger stores l on ctx for FromCtx.
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceID stores the request trace id on ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace id stored by WithTraceID, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(traceIDKey).(string)
	return s
}

// WithEventID marks ctx as processing the given processor event and adds
// event_id to its logger.
func WithEventID(ctx context.Context, base *zap.SugaredLogger, eventID string) context.Context {
	ctx = context.WithValue(ctx, eventIDKey, eventID)
	return With(ctx, base, "event_id", eventID)
}

// EventID returns the processor event id stored by WithEventID, or "".
func EventID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(eventIDKey).(string)
	return s
}

// With returns a ctx whose logger carries the extra key/value fields.
func With(ctx context.Context, base *zap.SugaredLogger, fields ...interface{}) context.Context {
	return WithLogger(ctx, FromCtx(ctx, base).With(fields...))
}

// FromGin returns a request-scoped logger from gin.Context if present,
// otherwise returns the provided base logger.
func FromGin(c *gin.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return base
	}
	if l, ok := c.Get(GinLoggerKey); ok {
		if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
			return lg
		}
	}
	return FromCtx(c.Request.Context(), base)
}

// FromCtx returns a logger from context if set, otherwise enriches base with the trace id.
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = zap.NewNop().Sugar()
	}
	if ctx == nil {
		return base
	}
	if lg, ok := ctx.Value(loggerKey).(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	if tid := TraceID(ctx); tid != "" {
		return base.With("trace_id", tid)
	}
	return base
}
