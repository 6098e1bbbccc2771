// Package httpmw provides echo middleware shared across ingest's HTTP
// surface: trace-id propagation, structured request logging, and panic
// recovery.
package httpmw

import "context"

type contextKey string

// TraceIDKey is the context key for the inbound trace id (propagated via
// the configurable header named by config.Config.TraceHeader).
const TraceIDKey contextKey = "trace_id"

// WithTraceID returns a new context carrying the trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID extracts the trace id from the context.
func GetTraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(TraceIDKey).(string)
	return v, ok
}
