package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elnmcp/gateway/internal/domain/audit"
	"github.com/elnmcp/gateway/internal/domain/sanitize"
)

// AuditEmitter buffers audit events and writes them to a Sink on a
// background goroutine, so the dispatcher's hot path never blocks on
// audit write-back. Unlike a plain bounded channel, its overflow policy
// is priority-aware: scope.violation events are never silently dropped.
// On overflow the oldest non-scope.violation event in the buffer is
// evicted to make room; if the buffer holds nothing but scope.violation
// events, the new event triggers a synchronous stderr log and, if
// configured, process termination.
type AuditEmitter struct {
	sink   audit.Sink
	logger *slog.Logger

	capacity        int
	flushInterval   time.Duration
	terminateOnFull bool

	mu    sync.Mutex
	queue []audit.Event

	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// EmitterOption configures AuditEmitter.
type EmitterOption func(*AuditEmitter)

// WithCapacity sets the maximum number of buffered, unwritten events.
func WithCapacity(n int) EmitterOption {
	return func(e *AuditEmitter) { e.capacity = n }
}

// WithFlushInterval sets how often the background worker drains the
// buffer to the sink.
func WithFlushInterval(d time.Duration) EmitterOption {
	return func(e *AuditEmitter) { e.flushInterval = d }
}

// WithTerminateOnOverflow controls whether the process exits when the
// buffer overflows with nothing evictable (i.e. it holds only
// scope.violation events and another one arrives).
func WithTerminateOnOverflow(terminate bool) EmitterOption {
	return func(e *AuditEmitter) { e.terminateOnFull = terminate }
}

// NewAuditEmitter builds an AuditEmitter writing to sink.
func NewAuditEmitter(sink audit.Sink, logger *slog.Logger, opts ...EmitterOption) *AuditEmitter {
	e := &AuditEmitter{
		sink:          sink,
		logger:        logger,
		capacity:      1000,
		flushInterval: time.Second,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the background drain worker.
func (e *AuditEmitter) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.worker(ctx)
}

// Record sanitizes and enqueues event. It never blocks the caller.
func (e *AuditEmitter) Record(event audit.Event) {
	event.Message = sanitize.New().QueryParams(event.Message)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.enqueueLocked(event)
}

func (e *AuditEmitter) enqueueLocked(event audit.Event) {
	if len(e.queue) < e.capacity {
		e.queue = append(e.queue, event)
		return
	}

	for i, queued := range e.queue {
		if queued.Type != audit.EventScopeViolation {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			e.queue = append(e.queue, event)
			return
		}
	}

	if event.Type == audit.EventScopeViolation {
		e.auditDropLocked(event)
		return
	}

	e.dropped.Add(1)
	e.logger.Warn("audit event dropped, buffer full of scope.violation events", "event", event.Type)
}

// auditDropLocked handles the unrecoverable overflow case: the buffer is
// full of scope.violation events and another has just arrived. This is
// logged synchronously to stderr, bypassing the buffer entirely, because
// the normal async path has no room left to carry the warning.
func (e *AuditEmitter) auditDropLocked(event audit.Event) {
	fmt.Fprintf(os.Stderr, "audit drop: scope.violation buffer full, event=%s resource=%s\n", event.Type, event.ResourceURI)
	if e.terminateOnFull {
		os.Exit(1)
	}
}

// DroppedEvents returns the count of non-scope.violation events dropped
// due to sustained overflow.
func (e *AuditEmitter) DroppedEvents() int64 {
	return e.dropped.Load()
}

// Stop signals the worker to perform a final drain and waits up to
// deadline for it to finish. Once the worker has exited, Stop also
// writes any events recorded after the worker's last drain.
func (e *AuditEmitter) Stop(deadline time.Duration) {
	close(e.done)
	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		e.drain(context.Background())
	case <-time.After(deadline):
		e.logger.Warn("audit emitter drain deadline exceeded, buffered events may be lost")
	}
}

func (e *AuditEmitter) worker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.drain(ctx)
		case <-e.done:
			e.drain(context.Background())
			return
		case <-ctx.Done():
			e.drain(context.Background())
			return
		}
	}
}

func (e *AuditEmitter) drain(ctx context.Context) {
	e.mu.Lock()
	batch := e.queue
	e.queue = nil
	e.mu.Unlock()

	for _, event := range batch {
		if err := e.sink.Write(ctx, event); err != nil {
			e.logger.Error("audit sink write failed", "error", err, "event", event.Type)
		}
	}
}
