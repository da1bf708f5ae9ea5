package audit

import "context"

// correlationIDContextKey is the context key type for correlation-ID
// propagation. Dispatcher generates one correlation ID per incoming
// JSON-RPC request and stores it here; every component that emits an
// Event for that request reads it back so all events (and the wire
// error, if any) for a single request share one corr_id.
type correlationIDContextKey struct{}

// WithCorrelationID returns a copy of ctx carrying id as the
// request-correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, id)
}

// CorrelationIDFromContext returns the correlation ID stored in ctx, or
// "" if none was set.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDContextKey{}).(string)
	return id
}
