package audit

import "context"

// Sink persists or forwards audit events. The stdout/file sink
// implementations live in internal/adapter/outbound/audit; the emitter
// in internal/service depends only on this interface.
type Sink interface {
	// Write delivers one sanitized event. It must not block the caller
	// for long; the emitter already runs it off the dispatcher's thread,
	// but a slow sink still limits how fast the buffer drains.
	Write(ctx context.Context, event Event) error

	// Close flushes and releases any resources held by the sink. Called
	// once, during the emitter's drain-and-shutdown sequence.
	Close() error
}
