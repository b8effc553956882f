package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext correlates log lines, error bodies and spans of one request.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// NewTrace builds a TraceContext for an incoming request. A valid span
// context supplies trace and span ids; otherwise the caller's trace id is
// kept, and missing ids are generated.
func NewTrace(sc trace.SpanContext, traceID, requestID string) *TraceContext {
	t := &TraceContext{TraceID: traceID, RequestID: requestID}
	if sc.IsValid() {
		t.TraceID = sc.TraceID().String()
		t.SpanID = sc.SpanID().String()
	}
	if t.TraceID == "" {
		t.TraceID = uuid.NewString()
	}
	if t.SpanID == "" {
		t.SpanID = uuid.NewString()[:16]
	}
	if t.RequestID == "" {
		t.RequestID = uuid.NewString()
	}
	return t
}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, t)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}
