package elnapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/elnmcp/gateway/internal/domain/elnerrors"
	"github.com/elnmcp/gateway/internal/domain/sanitize"
	"github.com/elnmcp/gateway/internal/domain/signer"
	"github.com/elnmcp/gateway/internal/port/outbound"
)

// maxResponseBodySize bounds how much of an upstream response body is
// read, guarding against an upstream sending an unbounded body.
const maxResponseBodySize = 10 * 1024 * 1024

// Client is the outbound HTTP adapter for the ELN API. It implements
// outbound.ELNRequester. Connection pooling is mandatory: Client holds
// exactly one *http.Client, reused across every call and every retry.
type Client struct {
	cfg        Config
	httpClient *http.Client
	auth       outbound.Authenticator
	logger     *slog.Logger
	sanitizer  *sanitize.Sanitizer
}

var _ outbound.ELNRequester = (*Client)(nil)

// New builds a Client. auth is the credential-provider/reauthenticator
// capability AuthManager exposes; Client depends only on that interface
// and never owns an AuthManager.
func New(cfg Config, auth outbound.Authenticator, logger *slog.Logger) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext:         dialer.DialContext,
	}
	return &Client{
		cfg:    cfg,
		auth:   auth,
		logger: logger,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		sanitizer: sanitize.New(),
	}
}

// Close releases the idle connections in the pool. The serve command
// does not call it; idle connections are released when the process exits.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// retryableStatus reports whether a response status participates in the
// retry/backoff schedule (429 or 5xx). 401/403/404 and other 4xx never
// retry here; 401 is handled one layer up, by Get's reauthentication path.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Get issues one authenticated GET against path, trying the primary
// endpoint and then, in order, each backup endpoint, applying the
// configured retry/backoff schedule against each before moving to the
// next. It implements the request algorithm in full, including the
// single transparent re-authentication on 401.
func (c *Client) Get(ctx context.Context, path string, params map[string]string) (*outbound.ELNResponse, error) {
	resp, err := c.getAttemptingReauth(ctx, path, params, false)
	return resp, err
}

func (c *Client) getAttemptingReauth(ctx context.Context, path string, params map[string]string, alreadyRetriedAuth bool) (*outbound.ELNResponse, error) {
	// reauthKey marks requests issued from inside HandleUnauthorized, so
	// a 401 on the re-authentication call itself does not recurse.
	type reauthKey struct{}
	for _, base := range c.cfg.endpoints() {
		resp, unauthorized, err := c.doWithRetry(ctx, base, path, params)
		if unauthorized {
			if alreadyRetriedAuth {
				return nil, &elnerrors.AuthenticationError{Reason: "second consecutive 401 from upstream"}
			}
			if ctx.Value(reauthKey{}) != nil {
				return nil, &elnerrors.AuthenticationError{Reason: "401 from upstream during re-authentication"}
			}
			if authErr := c.auth.HandleUnauthorized(context.WithValue(ctx, reauthKey{}, true)); authErr != nil {
				return nil, &elnerrors.AuthenticationError{Reason: authErr.Error()}
			}
			return c.getAttemptingReauth(ctx, path, params, true)
		}
		if err == nil {
			return resp, nil
		}
		if !shouldFailover(err) {
			return nil, err
		}
		c.logger.Warn("eln endpoint exhausted, trying backup", "base_url", base, "error", err)
	}
	return nil, &elnerrors.UpstreamUnavailableError{Path: path}
}

// shouldFailover reports whether exhausting the attempt budget against
// one endpoint should trigger trying the next backup. Per the failover
// rule, only connection-level failure or persistent 5xx triggers
// failover; 401 never reaches here (doWithRetry reports it as
// unauthorized), and 403/404/other-4xx errors return false.
func shouldFailover(err error) bool {
	var rl *elnerrors.RateLimitedError
	if errors.As(err, &rl) {
		return false
	}
	var unavailable *elnerrors.UpstreamUnavailableError
	return errors.As(err, &unavailable)
}

// doWithRetry runs the attempt budget (1 + MaxRetries) against a single
// endpoint. It returns unauthorized=true on a 401 without consuming any
// retry budget — the caller retries once after re-authenticating.
func (c *Client) doWithRetry(ctx context.Context, baseURL, path string, params map[string]string) (resp *outbound.ELNResponse, unauthorized bool, err error) {
	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	skipBackoff := false
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && !skipBackoff {
			delay := nextBackoff(c.cfg, attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, false, &elnerrors.UpstreamUnavailableError{Path: path, Err: ctx.Err()}
			}
		}
		skipBackoff = false

		result, status, retryAfter, doErr := c.doOnce(ctx, baseURL, path, params)
		if doErr != nil {
			lastErr = doErr
			continue
		}
		switch {
		case status >= 200 && status < 300:
			return result, false, nil
		case status == http.StatusUnauthorized:
			return nil, true, nil
		case status == http.StatusForbidden:
			return nil, false, &elnerrors.PermissionError{Path: path}
		case status == http.StatusNotFound:
			return nil, false, &elnerrors.NotFoundError{Resource: path}
		case status == http.StatusTooManyRequests:
			lastErr = &elnerrors.RateLimitedError{Path: path}
			if retryAfter > 0 {
				select {
				case <-time.After(retryAfter):
				case <-ctx.Done():
					return nil, false, &elnerrors.UpstreamUnavailableError{Path: path, Err: ctx.Err()}
				}
				skipBackoff = true
			}
			continue
		case retryableStatus(status):
			lastErr = &elnerrors.UpstreamUnavailableError{Path: path, Err: fmt.Errorf("status %d", status)}
			continue
		default:
			return nil, false, &elnerrors.RequestError{StatusCode: status, Path: path}
		}
	}

	if lastErr == nil {
		lastErr = &elnerrors.UpstreamUnavailableError{Path: path}
	}
	var rl *elnerrors.RateLimitedError
	if errors.As(lastErr, &rl) {
		return nil, false, lastErr
	}
	return nil, false, &elnerrors.UpstreamUnavailableError{Path: path, Err: lastErr}
}

// doOnce performs exactly one HTTP attempt and returns the decoded body
// on 2xx, or the status code (and Retry-After, if present) on any other
// outcome. A transport-level failure (dial/TLS/timeout) is reported as
// doErr.
func (c *Client) doOnce(ctx context.Context, baseURL, path string, params map[string]string) (*outbound.ELNResponse, int, time.Duration, error) {
	creds, err := c.auth.CurrentCredentials(ctx)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("obtain credentials: %w", err)
	}

	query := make(map[string]string, len(params)+3)
	for k, v := range params {
		query[k] = v
	}
	query["access_key_id"] = creds.AccessKeyID
	switch creds.Mode {
	case outbound.AuthModeAPIKey:
		sig := signer.Sign(http.MethodGet, path, query, creds.PasswordOrToken)
		query["sig"] = sig.Signature
		query["ts"] = strconv.FormatInt(sig.Timestamp, 10)
	case outbound.AuthModeUserToken:
		query["username"] = creds.Username
		query["token"] = creds.PasswordOrToken
	}

	reqURL := baseURL + path
	u, err := url.Parse(reqURL)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("parse request url: %w", err)
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	c.logger.Debug("eln api request", "url", c.sanitizer.QueryParams(u.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("build request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, httpResp.StatusCode, retryAfterDuration(httpResp.Header.Get("Retry-After")), nil
	}

	contentType := httpResp.Header.Get("Content-Type")
	decoded, err := decodeBody(contentType, body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode response body: %w", err)
	}
	return &outbound.ELNResponse{Body: decoded, ContentType: contentType}, httpResp.StatusCode, 0, nil
}

func retryAfterDuration(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
