package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elnmcp/gateway/internal/domain/audit"
	"github.com/elnmcp/gateway/internal/domain/elnerrors"
	"github.com/elnmcp/gateway/internal/port/outbound"
)

type stubRequester struct {
	calls    int
	response *outbound.ELNResponse
	err      error
}

func (s *stubRequester) Get(_ context.Context, _ string, _ map[string]string) (*outbound.ELNResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func okResponse(userID string) *outbound.ELNResponse {
	return &outbound.ELNResponse{Body: map[string]any{"user_id": userID}, ContentType: "application/json"}
}

func TestAuthManager_EnsureAuthenticated_AuthenticatesWhenNoSession(t *testing.T) {
	requester := &stubRequester{response: okResponse("u1")}
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))
	mgr := NewAuthManager(AuthManagerConfig{
		Mode:        outbound.AuthModeAPIKey,
		AccessKeyID: "AK",
	}, requester, emitter, testLogger())

	if err := mgr.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated: %v", err)
	}
	if requester.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", requester.calls)
	}

	creds, err := mgr.CurrentCredentials(context.Background())
	if err != nil {
		t.Fatalf("CurrentCredentials: %v", err)
	}
	if creds.AccessKeyID != "AK" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.queue) != 1 || emitter.queue[0].Type != audit.EventAuthSuccess {
		t.Fatalf("expected one auth.success event, got %+v", emitter.queue)
	}
	if emitter.queue[0].UserID != "u1" {
		t.Fatalf("expected audit event to carry user_id, got %+v", emitter.queue[0])
	}
}

func TestAuthManager_EnsureAuthenticated_RecordsCorrelationIDFromContext(t *testing.T) {
	requester := &stubRequester{response: okResponse("u1")}
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))
	mgr := NewAuthManager(AuthManagerConfig{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK"}, requester, emitter, testLogger())

	ctx := audit.WithCorrelationID(context.Background(), "corr-auth-1")
	if err := mgr.EnsureAuthenticated(ctx); err != nil {
		t.Fatalf("EnsureAuthenticated: %v", err)
	}

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.queue) != 1 || emitter.queue[0].CorrelationID != "corr-auth-1" {
		t.Fatalf("expected auth.success event to carry correlation id, got %+v", emitter.queue)
	}
}

func TestAuthManager_EnsureAuthenticated_NoOpWhenFresh(t *testing.T) {
	requester := &stubRequester{response: okResponse("u1")}
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))
	mgr := NewAuthManager(AuthManagerConfig{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK"}, requester, emitter, testLogger())

	if err := mgr.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("first EnsureAuthenticated: %v", err)
	}
	if err := mgr.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("second EnsureAuthenticated: %v", err)
	}
	if requester.calls != 1 {
		t.Fatalf("expected exactly 1 upstream call for a fresh session, got %d", requester.calls)
	}
}

func TestAuthManager_EnsureAuthenticated_RefreshesNearExpiry(t *testing.T) {
	requester := &stubRequester{response: okResponse("u1")}
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))
	mgr := NewAuthManager(AuthManagerConfig{
		Mode:             outbound.AuthModeAPIKey,
		AccessKeyID:      "AK",
		RefreshThreshold: 24 * time.Hour,
	}, requester, emitter, testLogger())

	if err := mgr.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("first EnsureAuthenticated: %v", err)
	}
	if err := mgr.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("second EnsureAuthenticated: %v", err)
	}
	if requester.calls != 2 {
		t.Fatalf("expected refresh threshold to force a second upstream call, got %d", requester.calls)
	}

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.queue) != 2 || emitter.queue[1].Type != audit.EventAuthRefresh {
		t.Fatalf("expected second event to be auth.refresh, got %+v", emitter.queue)
	}
}

func TestAuthManager_HandleUnauthorized_ReAuthenticates(t *testing.T) {
	requester := &stubRequester{response: okResponse("u2")}
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))
	mgr := NewAuthManager(AuthManagerConfig{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK"}, requester, emitter, testLogger())

	if err := mgr.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated: %v", err)
	}
	if err := mgr.HandleUnauthorized(context.Background()); err != nil {
		t.Fatalf("HandleUnauthorized: %v", err)
	}
	if requester.calls != 2 {
		t.Fatalf("expected HandleUnauthorized to re-authenticate, got %d calls", requester.calls)
	}
}

func TestAuthManager_HandleUnauthorized_SurfacesAuthenticationErrorOnFailure(t *testing.T) {
	requester := &stubRequester{err: errors.New("connection refused")}
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))
	mgr := NewAuthManager(AuthManagerConfig{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK"}, requester, emitter, testLogger())

	err := mgr.HandleUnauthorized(context.Background())
	var authErr *elnerrors.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *elnerrors.AuthenticationError, got %v (%T)", err, err)
	}
}

func TestAuthManager_UserTokenMode_AttachesUsernameAndToken(t *testing.T) {
	requester := &stubRequester{response: okResponse("u3")}
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))
	mgr := NewAuthManager(AuthManagerConfig{
		Mode:        outbound.AuthModeUserToken,
		AccessKeyID: "AK",
		Username:    "alice",
		Token:       "tok-123",
	}, requester, emitter, testLogger())

	if err := mgr.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated: %v", err)
	}
	creds, err := mgr.CurrentCredentials(context.Background())
	if err != nil {
		t.Fatalf("CurrentCredentials: %v", err)
	}
	if creds.Username != "alice" || creds.PasswordOrToken != "tok-123" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestAuthManager_MissingUserIDSurfacesAuthenticationError(t *testing.T) {
	requester := &stubRequester{response: &outbound.ELNResponse{Body: map[string]any{}}}
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))
	mgr := NewAuthManager(AuthManagerConfig{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK"}, requester, emitter, testLogger())

	err := mgr.EnsureAuthenticated(context.Background())
	var authErr *elnerrors.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *elnerrors.AuthenticationError, got %v (%T)", err, err)
	}
}

func TestAuthManager_NeverLogsCredentialMaterial(t *testing.T) {
	requester := &stubRequester{response: okResponse("u1")}
	sink := &memorySink{}
	emitter := NewAuditEmitter(sink, testLogger(), WithFlushInterval(time.Hour))
	mgr := NewAuthManager(AuthManagerConfig{
		Mode:           outbound.AuthModeAPIKey,
		AccessKeyID:    "AK",
		AccessPassword: "SUPERSECRET",
	}, requester, emitter, testLogger())

	if err := mgr.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated: %v", err)
	}

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	for _, event := range emitter.queue {
		if event.Message == "SUPERSECRET" || event.UserID == "SUPERSECRET" {
			t.Fatalf("audit event leaked credential material: %+v", event)
		}
	}
}
