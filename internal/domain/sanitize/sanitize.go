// Package sanitize redacts secret-bearing values from URLs, argv, and
// structured log contexts before any log handler or audit emitter
// observes them.
//
// Sanitizers never mutate their input; every exported function returns
// a copy. Callers MUST route any URL, argv slice, or params map through
// this package before handing it to a logger. AuditEmitter.Record in
// internal/service applies QueryParams to every audit message, and the
// elnapi client applies it to every request URL it logs.
package sanitize

import (
	"net/url"
	"strings"
)

// Redacted is the literal replacement value for a sensitive parameter.
const Redacted = "[REDACTED]"

// sensitiveNames is the minimum set of case-insensitive parameter/map
// key names whose values are always redacted.
var sensitiveNames = map[string]struct{}{
	"password":        {},
	"access_password": {},
	"secret":          {},
	"access_secret":   {},
	"token":           {},
	"access_token":    {},
	"refresh_token":   {},
	"auth":            {},
	"authorization":   {},
	"sig":             {},
	"signature":       {},
	"api_key":         {},
	"apikey":          {},
	"key":             {},
}

// sensitiveFlags is the minimum set of argv flags whose following
// positional value is always redacted.
var sensitiveFlags = map[string]struct{}{
	"-p":                {},
	"--password":        {},
	"--access-password": {},
	"--access-secret":   {},
	"-k":                {},
	"--access-key":      {},
	"--access-key-id":   {},
	"--token":           {},
	"--username":        {}, // PII, not a secret, but redacted in audit trails too
}

func isSensitiveName(name string) bool {
	_, ok := sensitiveNames[strings.ToLower(name)]
	return ok
}

// Sanitizer redacts secret-bearing values. It is stateless and safe for
// concurrent use; the zero value is ready to use.
type Sanitizer struct{}

// New returns a ready-to-use Sanitizer.
func New() *Sanitizer {
	return &Sanitizer{}
}

// QueryParams redacts the value of every query parameter (or bare query
// string) whose name is in the sensitive set. Parameter order and every
// other character, including parameter names, are preserved. If
// urlOrQuery fails to parse as a URL it is treated as a bare query
// string.
//
// A fast-path scan avoids the full parse/rebuild when no sensitive name
// is present, keeping this under the sub-millisecond budget a logger
// call site needs.
func (s *Sanitizer) QueryParams(urlOrQuery string) string {
	if !mightContainSensitiveName(urlOrQuery) {
		return urlOrQuery
	}

	if u, err := url.Parse(urlOrQuery); err == nil && (u.Scheme != "" || u.Host != "") {
		redactedQuery := s.redactQueryString(u.RawQuery)
		u.RawQuery = redactedQuery
		return u.String()
	}

	return s.redactQueryString(urlOrQuery)
}

func mightContainSensitiveName(s string) bool {
	lower := strings.ToLower(s)
	for name := range sensitiveNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// redactQueryString walks a raw query string (the part after "?")
// preserving parameter order and non-sensitive values exactly.
func (s *Sanitizer) redactQueryString(raw string) string {
	if raw == "" {
		return raw
	}
	pairs := strings.Split(raw, "&")
	for i, pair := range pairs {
		if pair == "" {
			continue
		}
		name, _, hasValue := strings.Cut(pair, "=")
		if hasValue && isSensitiveName(name) {
			pairs[i] = name + "=" + Redacted
		}
	}
	return strings.Join(pairs, "&")
}

// Argv redacts the positional value following any flag in the
// sensitive-flag set. The returned slice is a new slice; argv is never
// mutated.
func (s *Sanitizer) Argv(argv []string) []string {
	out := make([]string, len(argv))
	copy(out, argv)
	for i := 0; i < len(out); i++ {
		if _, sensitive := sensitiveFlags[out[i]]; sensitive && i+1 < len(out) {
			out[i+1] = Redacted
			i++
		}
	}
	return out
}

// Map recursively redacts the value of every key whose name is in the
// sensitive set, descending into nested maps and slices. The input is
// never mutated; a deep copy with redactions applied is returned.
func (s *Sanitizer) Map(m map[string]any) map[string]any {
	return s.sanitizeMap(m)
}

func (s *Sanitizer) sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveName(k) {
			out[k] = Redacted
			continue
		}
		out[k] = s.sanitizeValue(v)
	}
	return out
}

func (s *Sanitizer) sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return s.sanitizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
