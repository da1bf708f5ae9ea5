// Package elnapi implements the outbound HTTP client that talks to the
// ELN API: request signing, retry with backoff, rate-limit honoring,
// regional failover, and sanitized debug logging.
package elnapi

import "time"

// Config configures a Client.
type Config struct {
	// BaseURL is the primary endpoint, e.g. "https://region.elnapi.example/api".
	BaseURL string
	// BackupURLs is an ordered list of secondary endpoints tried, in
	// order, once the primary's attempt budget is exhausted by
	// connection-level failure or persistent 5xx.
	BackupURLs []string

	// Timeout is the per-attempt HTTP timeout.
	Timeout time.Duration
	// ConnectTimeout bounds TCP+TLS handshake time for a single attempt.
	ConnectTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt,
	// applied per endpoint. Total attempts against one endpoint is
	// 1 + MaxRetries.
	MaxRetries int
	// InitialBackoff is the base delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between any two attempts.
	MaxBackoff time.Duration
	// BackoffMultiplier scales the delay on each successive retry.
	BackoffMultiplier float64
	// Jitter is the uniform fractional jitter applied to each computed
	// backoff delay (0.25 means ±25%).
	Jitter float64
}

// DefaultConfig returns a Config populated with the defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		Timeout:           30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.25,
	}
}

func (c Config) endpoints() []string {
	return append([]string{c.BaseURL}, c.BackupURLs...)
}
