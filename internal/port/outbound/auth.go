package outbound

import "context"

// AuthMode selects which credential scheme HTTPClient attaches to a
// request.
type AuthMode int

const (
	// AuthModeAPIKey signs each request with access_key_id + HMAC sig + ts.
	AuthModeAPIKey AuthMode = iota
	// AuthModeUserToken attaches access_key_id + username + token.
	AuthModeUserToken
)

func (m AuthMode) String() string {
	switch m {
	case AuthModeAPIKey:
		return "API_KEY"
	case AuthModeUserToken:
		return "USER_TOKEN"
	default:
		return "unknown"
	}
}

// Credentials is the material HTTPClient needs to authenticate the next
// outbound request. PasswordOrToken is the access-key secret in API_KEY
// mode, or the session token in USER_TOKEN mode. UserID is the upstream
// user ID confirmed by the current authenticated session, empty if no
// session has been established yet; ResourceManager supplies it as the
// `uid` parameter on every notebooks/pages/entries call.
type Credentials struct {
	Mode            AuthMode
	AccessKeyID     string
	PasswordOrToken string
	Username        string
	UserID          string
}

// Authenticator is the credential-provider capability AuthManager exposes
// to HTTPClient. HTTPClient depends only on this interface; it never
// owns an AuthManager.
type Authenticator interface {
	// CurrentCredentials returns the credential material to attach to the
	// next outbound request.
	CurrentCredentials(ctx context.Context) (Credentials, error)

	// EnsureAuthenticated authenticates if no session exists, or
	// proactively refreshes one nearing expiry. It is a no-op when the
	// current session is still fresh.
	EnsureAuthenticated(ctx context.Context) error

	// HandleUnauthorized invalidates the current session and
	// authenticates again. Callers retry the original request exactly
	// once after this returns successfully.
	HandleUnauthorized(ctx context.Context) error
}
