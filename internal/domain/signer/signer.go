// Package signer computes HMAC-SHA256 request signatures for API-key
// authenticated calls to the ELN API.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Result carries the signature and the timestamp it was computed over.
// Both are attached to the outbound request by the caller (the "ts" and
// "sig" parameters).
type Result struct {
	Signature string
	Timestamp int64
}

// Sign computes the canonical request string
//
//	METHOD + "\n" + PATH + "\n" + k1=v1&k2=v2&...&ts=<unix_seconds>
//
// with params sorted ascending by key, then by value, and returns its
// HMAC-SHA256 signature (lowercase hex) keyed by accessPassword, along
// with the timestamp used. Sign does not tolerate or adjust for clock
// skew; callers that see a rejected timestamp re-invoke Sign on retry to
// pick up a fresh one.
func Sign(method, path string, params map[string]string, accessPassword string) Result {
	ts := time.Now().Unix()
	return signAt(method, path, params, accessPassword, ts)
}

func signAt(method, path string, params map[string]string, accessPassword string, ts int64) Result {
	canonical := CanonicalString(method, path, params, ts)

	mac := hmac.New(sha256.New, []byte(accessPassword))
	mac.Write([]byte(canonical))
	sig := hex.EncodeToString(mac.Sum(nil))

	return Result{Signature: sig, Timestamp: ts}
}

// CanonicalString builds the canonical request string Sign signs, with
// the caller-supplied timestamp rather than the system clock. Exported
// so tests (and Verify-style callers, should the upstream ever need
// one) can reconstruct the exact bytes that were signed.
func CanonicalString(method, path string, params map[string]string, ts int64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] != keys[j] {
			return keys[i] < keys[j]
		}
		return params[keys[i]] < params[keys[j]]
	})

	pairs := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	pairs = append(pairs, "ts="+strconv.FormatInt(ts, 10))

	return fmt.Sprintf("%s\n%s\n%s", strings.ToUpper(method), path, strings.Join(pairs, "&"))
}
