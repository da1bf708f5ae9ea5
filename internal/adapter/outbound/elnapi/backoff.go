package elnapi

import (
	"math"
	"math/rand"
	"time"
)

// nextBackoff computes the delay before retry attempt n (0-indexed,
// where n=0 is the delay before the second overall attempt):
// InitialBackoff * BackoffMultiplier^n, capped at MaxBackoff, with
// uniform ±Jitter applied on top.
//
// cenkalti/backoff/v5 is not a dependency of this module (it appears,
// declared but unused, only in the unrelated stacklok-toolhive reference
// repo); its v5 generics rewrite changed the BackOff/Retry surface enough
// that the exact struct fields and option names could not be confirmed
// against any vendored source available in this environment, so rather
// than guess at an unverifiable API, the schedule is computed directly
// against the documented formula here.
func nextBackoff(cfg Config, n int) time.Duration {
	base := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(n))
	if max := float64(cfg.MaxBackoff); base > max {
		base = max
	}
	if cfg.Jitter <= 0 {
		return time.Duration(base)
	}
	spread := base * cfg.Jitter
	jittered := base - spread + rand.Float64()*2*spread
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}
