package context

import (
	"context"

	"querygrid/internal/core/id"
)

// TraceContext contains request tracing information.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

type regionKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext creates a new TraceContext with generated IDs.
func NewTraceContext() *TraceContext {
	return &TraceContext{
		TraceID:   id.New(),
		SpanID:    id.Short(),
		RequestID: id.New(),
	}
}

// WithRegion tags the context with the name of the grid region being served.
func WithRegion(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, regionKey{}, name)
}

// GetRegion returns the region name from context or empty string.
func GetRegion(ctx context.Context) string {
	if v, ok := ctx.Value(regionKey{}).(string); ok {
		return v
	}
	return ""
}
