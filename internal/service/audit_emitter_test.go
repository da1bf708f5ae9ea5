package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/elnmcp/gateway/internal/domain/audit"
)

type memorySink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memorySink) Write(_ context.Context, event audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuditEmitter_RecordAndDrain(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	emitter.Start(ctx)
	defer emitter.Stop(time.Second)

	emitter.Record(audit.Event{Type: audit.EventAuthSuccess, Outcome: audit.OutcomeOK, UserID: "u1"})

	deadline := time.Now().Add(time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 event written, got %d", sink.count())
	}
}

func TestAuditEmitter_OverflowEvictsOldestNonViolation(t *testing.T) {
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithCapacity(2), WithFlushInterval(time.Hour))

	emitter.Record(audit.Event{Type: audit.EventResourceList, Outcome: audit.OutcomeOK})
	emitter.Record(audit.Event{Type: audit.EventResourceRead, Outcome: audit.OutcomeOK})
	emitter.Record(audit.Event{Type: audit.EventScopeViolation, Outcome: audit.OutcomeDenied, ResourceURI: "eln://notebook/nb1"})

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.queue) != 2 {
		t.Fatalf("expected buffer capped at 2, got %d", len(emitter.queue))
	}
	if emitter.queue[0].Type != audit.EventResourceRead {
		t.Fatalf("expected oldest non-violation event evicted, queue[0]=%v", emitter.queue[0].Type)
	}
	if emitter.queue[1].Type != audit.EventScopeViolation {
		t.Fatalf("expected scope.violation retained, got %v", emitter.queue[1].Type)
	}
}

func TestAuditEmitter_NeverDropsScopeViolationForNonViolation(t *testing.T) {
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithCapacity(1), WithFlushInterval(time.Hour))

	emitter.Record(audit.Event{Type: audit.EventScopeViolation, Outcome: audit.OutcomeDenied})
	emitter.Record(audit.Event{Type: audit.EventResourceList, Outcome: audit.OutcomeOK})

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.queue) != 1 || emitter.queue[0].Type != audit.EventScopeViolation {
		t.Fatalf("expected scope.violation to survive overflow, queue=%+v", emitter.queue)
	}
	if emitter.DroppedEvents() != 1 {
		t.Fatalf("expected dropped count 1, got %d", emitter.DroppedEvents())
	}
}

func TestAuditEmitter_SanitizesMessageBeforeBuffering(t *testing.T) {
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))

	emitter.Record(audit.Event{
		Type:    audit.EventUpstreamError,
		Outcome: audit.OutcomeError,
		Message: fmt.Sprintf("failed call to /users/user_info?access_key_id=AK&sig=%s", "DEADBEEF"),
	})

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.queue) != 1 {
		t.Fatalf("expected 1 queued event")
	}
	got := emitter.queue[0].Message
	if got == "" {
		t.Fatal("expected sanitized message to be non-empty")
	}
	if containsSig(got) {
		t.Fatalf("expected sig value to be redacted, got %q", got)
	}
}

func containsSig(s string) bool {
	return len(s) >= 8 && (stringsContains(s, "DEADBEEF"))
}

func stringsContains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
