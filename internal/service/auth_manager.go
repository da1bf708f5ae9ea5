package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elnmcp/gateway/internal/domain/audit"
	"github.com/elnmcp/gateway/internal/domain/authcore"
	"github.com/elnmcp/gateway/internal/domain/elnerrors"
	"github.com/elnmcp/gateway/internal/port/outbound"
)

// AuthManagerConfig is the credential material AuthManager authenticates
// with. Exactly one of (AccessPassword) or (Username, Token) is used,
// selected by Mode.
type AuthManagerConfig struct {
	Mode             outbound.AuthMode
	AccessKeyID      string
	AccessPassword   string
	Username         string
	Token            string
	UserInfoPath     string
	RefreshThreshold time.Duration
}

// AuthManager produces and maintains a valid authcore.Session, mediating
// transparent re-authentication. It is the credential-provider capability
// HTTPClient depends on through outbound.Authenticator; AuthManager in
// turn depends on outbound.ELNRequester to make its own upstream call,
// resolving the bidirectional relationship without either side owning
// the other concretely.
type AuthManager struct {
	cfg       AuthManagerConfig
	requester outbound.ELNRequester
	emitter   *AuditEmitter
	logger    *slog.Logger

	mu      sync.Mutex
	session *authcore.Session
}

var _ outbound.Authenticator = (*AuthManager)(nil)

// NewAuthManager builds an AuthManager. cfg.AccessKeyID must be non-empty
// and, depending on Mode, either AccessPassword or Username+Token must be
// non-empty; the caller is expected to have validated this as a startup
// configuration error before constructing AuthManager.
func NewAuthManager(cfg AuthManagerConfig, requester outbound.ELNRequester, emitter *AuditEmitter, logger *slog.Logger) *AuthManager {
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = authcore.DefaultRefreshThreshold
	}
	if cfg.UserInfoPath == "" {
		cfg.UserInfoPath = "/users/user_info"
	}
	return &AuthManager{
		cfg:       cfg,
		requester: requester,
		emitter:   emitter,
		logger:    logger,
	}
}

// CurrentCredentials returns the credential material HTTPClient attaches
// to the next outbound request. It does not authenticate; callers must
// have already called EnsureAuthenticated on the same request path.
func (m *AuthManager) CurrentCredentials(_ context.Context) (outbound.Credentials, error) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	var userID string
	if session != nil {
		userID = session.UserID
	}

	switch m.cfg.Mode {
	case outbound.AuthModeAPIKey:
		return outbound.Credentials{
			Mode:            outbound.AuthModeAPIKey,
			AccessKeyID:     m.cfg.AccessKeyID,
			PasswordOrToken: m.cfg.AccessPassword,
			UserID:          userID,
		}, nil
	case outbound.AuthModeUserToken:
		return outbound.Credentials{
			Mode:            outbound.AuthModeUserToken,
			AccessKeyID:     m.cfg.AccessKeyID,
			PasswordOrToken: m.cfg.Token,
			Username:        m.cfg.Username,
			UserID:          userID,
		}, nil
	default:
		return outbound.Credentials{}, &elnerrors.ConfigurationError{Reason: fmt.Sprintf("unknown auth mode %v", m.cfg.Mode)}
	}
}

// EnsureAuthenticated authenticates if no session exists, or proactively
// refreshes one nearing expiry. It is a no-op when the current session
// is still fresh.
func (m *AuthManager) EnsureAuthenticated(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	now := time.Now().UTC()
	if session == nil {
		return m.authenticate(ctx, true, false)
	}
	if session.NeedsRefresh(now, m.cfg.RefreshThreshold) {
		return m.authenticate(ctx, false, false)
	}
	return nil
}

// HandleUnauthorized invalidates the current session and authenticates
// again. The caller (HTTPClient) retries the original request exactly
// once after this returns successfully; a second 401 is the caller's
// responsibility to surface as an AuthenticationError.
func (m *AuthManager) HandleUnauthorized(ctx context.Context) error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return m.authenticate(ctx, false, true)
}

// authenticate performs the upstream user-info call for the configured
// mode, installs a fresh session on success, and emits exactly one audit
// event for the attempt: EventAuthSuccess for an initial authentication,
// EventAuthRefresh for a proactive or 401-driven re-authentication, and
// EventAuthFailure whenever the attempt did not produce a usable
// session, regardless of which of those it was.
func (m *AuthManager) authenticate(ctx context.Context, initial bool, forcedReauth bool) error {
	successType := audit.EventAuthRefresh
	if initial {
		successType = audit.EventAuthSuccess
	}

	params := map[string]string{
		"access_key_id": m.cfg.AccessKeyID,
	}
	switch m.cfg.Mode {
	case outbound.AuthModeUserToken:
		params["username"] = m.cfg.Username
		params["token"] = m.cfg.Token
	case outbound.AuthModeAPIKey:
		// access_key_id is already set; sig/ts are attached by HTTPClient
		// itself when it signs the request, not here.
	default:
		err := &elnerrors.ConfigurationError{Reason: fmt.Sprintf("unknown auth mode %v", m.cfg.Mode)}
		m.recordAuth(ctx, audit.EventAuthFailure, "", err.Error())
		return err
	}

	resp, err := m.requester.Get(ctx, m.cfg.UserInfoPath, params)
	if err != nil {
		m.recordAuth(ctx, audit.EventAuthFailure, "", "authentication request failed")
		if forcedReauth {
			return &elnerrors.AuthenticationError{Reason: "re-authentication after 401 failed"}
		}
		return fmt.Errorf("authenticate: %w", err)
	}

	userID, ok := resp.Body["user_id"].(string)
	if !ok || userID == "" {
		reason := "user-info response missing user_id"
		m.recordAuth(ctx, audit.EventAuthFailure, "", reason)
		return &elnerrors.AuthenticationError{Reason: reason}
	}

	now := time.Now().UTC()
	session := &authcore.Session{
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(authcore.DefaultLifetime),
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.recordAuth(ctx, successType, userID, "")
	return nil
}

func (m *AuthManager) recordAuth(ctx context.Context, eventType audit.EventType, userID, message string) {
	if m.emitter == nil {
		return
	}
	outcome := audit.OutcomeOK
	if eventType == audit.EventAuthFailure {
		outcome = audit.OutcomeError
	}
	m.emitter.Record(audit.Event{
		Timestamp:     time.Now().UTC(),
		CorrelationID: audit.CorrelationIDFromContext(ctx),
		Type:          eventType,
		Outcome:       outcome,
		UserID:        userID,
		Message:       message,
	})
}
