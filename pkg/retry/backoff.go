// Package retry computes the delay before a task's next attempt. It is
// a pure function of (attempts, config) so behavior is deterministic
// and unit-testable without a clock or a store, generalizing the
// teacher's inline "1<<retryCount * 100ms" formula in
// queue.Client.Retry into spec.md §4.2/§4.4's
// "delay = min(max_delay, base_delay * (exponential ? 2^(attempts-1) : 1))"
// with bounded jitter.
package retry

import (
	"math/rand"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// jitterFraction bounds jitter to spec.md §9(c): "exact jitter
// distribution is left to implementation but must be bounded within
// ±20%".
const jitterFraction = 0.20

// Delay returns the backoff duration before attempt number `attempts`
// (1-indexed: the delay preceding the first retry, i.e. after the
// first failed attempt, uses attempts=1). jitter, when true, applies up
// to ±20% uniform jitter; deterministic tests should pass jitter=false.
func Delay(attempts int, cfg tasks.RetryConfig, jitter bool) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	base := time.Duration(cfg.BaseDelaySec) * time.Second
	maxDelay := time.Duration(cfg.MaxDelaySeconds) * time.Second

	var d time.Duration
	if cfg.Exponential {
		d = base * time.Duration(pow2(attempts-1))
	} else {
		d = base
	}
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	if jitter {
		d = applyJitter(d)
		if maxDelay > 0 && d > maxDelay {
			d = maxDelay
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// NextAttemptAt returns the absolute time a task becomes eligible for
// its next attempt, relative to now.
func NextAttemptAt(now time.Time, attempts int, cfg tasks.RetryConfig, jitter bool) time.Time {
	return now.Add(Delay(attempts, cfg, jitter))
}

func pow2(n int) int64 {
	if n <= 0 {
		return 1
	}
	if n > 62 {
		n = 62 // guard against overflow for pathological configs
	}
	return int64(1) << uint(n)
}

func applyJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	delta := float64(d) * jitterFraction
	offset := (rand.Float64()*2 - 1) * delta // uniform in [-delta, +delta]
	return d + time.Duration(offset)
}
