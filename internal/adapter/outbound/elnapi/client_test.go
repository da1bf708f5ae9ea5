package elnapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elnmcp/gateway/internal/domain/elnerrors"
	"github.com/elnmcp/gateway/internal/port/outbound"
)

type stubAuth struct {
	creds              outbound.Credentials
	handleUnauthorized func(ctx context.Context) error
	unauthorizedCalls  int32
}

func (s *stubAuth) CurrentCredentials(context.Context) (outbound.Credentials, error) {
	return s.creds, nil
}

func (s *stubAuth) EnsureAuthenticated(context.Context) error { return nil }

func (s *stubAuth) HandleUnauthorized(ctx context.Context) error {
	atomic.AddInt32(&s.unauthorizedCalls, 1)
	if s.handleUnauthorized != nil {
		return s.handleUnauthorized(ctx)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig(baseURL string) Config {
	cfg := DefaultConfig(baseURL)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestGet_SuccessOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id":"u1"}`))
	}))
	defer srv.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	c := New(fastConfig(srv.URL), auth, testLogger())

	resp, err := c.Get(context.Background(), "/users/user_info", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Body["user_id"] != "u1" {
		t.Fatalf("got %+v", resp.Body)
	}
}

func TestGet_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	c := New(fastConfig(srv.URL), auth, testLogger())

	resp, err := c.Get(context.Background(), "/pages/list", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Body["ok"] != true {
		t.Fatalf("got %+v", resp.Body)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestGet_ExhaustsRetriesOnPersistent5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	cfg := fastConfig(srv.URL)
	cfg.MaxRetries = 1
	c := New(cfg, auth, testLogger())

	_, err := c.Get(context.Background(), "/pages/list", nil)
	var unavailable *elnerrors.UpstreamUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UpstreamUnavailableError, got %v", err)
	}
}

func TestGet_403SurfacesPermissionErrorWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	c := New(fastConfig(srv.URL), auth, testLogger())

	_, err := c.Get(context.Background(), "/pages/list", nil)
	var perm *elnerrors.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call (no retry), got %d", calls)
	}
}

func TestGet_404SurfacesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	c := New(fastConfig(srv.URL), auth, testLogger())

	_, err := c.Get(context.Background(), "/pages/get", nil)
	var nf *elnerrors.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestGet_SingleTransparentReauthOn401(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	c := New(fastConfig(srv.URL), auth, testLogger())

	resp, err := c.Get(context.Background(), "/pages/list", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Body["ok"] != true {
		t.Fatalf("got %+v", resp.Body)
	}
	if atomic.LoadInt32(&auth.unauthorizedCalls) != 1 {
		t.Fatalf("expected exactly 1 HandleUnauthorized call, got %d", auth.unauthorizedCalls)
	}
}

func TestGet_SecondConsecutive401SurfacesAuthenticationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	c := New(fastConfig(srv.URL), auth, testLogger())

	_, err := c.Get(context.Background(), "/pages/list", nil)
	var authErr *elnerrors.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if atomic.LoadInt32(&auth.unauthorizedCalls) != 1 {
		t.Fatalf("expected exactly 1 HandleUnauthorized call, got %d", auth.unauthorizedCalls)
	}
}

func TestGet_429HonorsRetryAfter(t *testing.T) {
	var calls int32
	start := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	c := New(fastConfig(srv.URL), auth, testLogger())

	_, err := c.Get(context.Background(), "/pages/list", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 1*time.Second {
		t.Fatalf("expected at least 1s delay honoring Retry-After, elapsed %v", elapsed)
	}
	if elapsed > 1200*time.Millisecond {
		t.Fatalf("Retry-After delay should not also stack the attempt's own backoff wait, elapsed %v", elapsed)
	}
}

func TestGet_FailsOverToBackupOnPersistent5xx(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()
	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer backup.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	cfg := fastConfig(primary.URL)
	cfg.MaxRetries = 1
	cfg.BackupURLs = []string{backup.URL}
	c := New(cfg, auth, testLogger())

	resp, err := c.Get(context.Background(), "/pages/list", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Body["ok"] != true {
		t.Fatalf("got %+v", resp.Body)
	}
}

func TestGet_XMLResponseDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<user><id>u1</id></user>`))
	}))
	defer srv.Close()

	auth := &stubAuth{creds: outbound.Credentials{Mode: outbound.AuthModeAPIKey, AccessKeyID: "AK", PasswordOrToken: "secret"}}
	c := New(fastConfig(srv.URL), auth, testLogger())

	resp, err := c.Get(context.Background(), "/users/user_info", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user, ok := resp.Body["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested user map, got %+v", resp.Body)
	}
	if user["id"] != "u1" {
		t.Fatalf("got %+v", user)
	}
}
