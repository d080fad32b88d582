package worker

import (
	"context"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/store"
)

// tokenBucketScript is the teacher's queue.Client.Allow rate limiter
// carried over verbatim in spirit: a Lua token bucket keyed by an
// arbitrary string, refilled by elapsed wall-clock time at `rate`
// tokens/sec up to `burst` capacity.
//
// KEYS[1] = bucket key
// ARGV[1] = rate (tokens/sec)
// ARGV[2] = burst (capacity)
// ARGV[3] = now (unix seconds)
// ARGV[4] = tokens requested
const tokenBucketScript = `
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last_refill = tonumber(redis.call('HGET', KEYS[1], 'last_refill'))
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if not tokens then
	tokens = burst
	last_refill = now
end

local delta = math.max(0, now - last_refill)
local new_tokens = math.min(burst, tokens + (delta * rate))

if new_tokens >= requested then
	new_tokens = new_tokens - requested
	redis.call('HSET', KEYS[1], 'tokens', new_tokens, 'last_refill', now)
	return 1
else
	redis.call('HSET', KEYS[1], 'tokens', new_tokens, 'last_refill', now)
	return 0
end
`

// RateLimiter throttles per-key work (typically per task name) using a
// Redis-backed token bucket, shared across every worker process since
// it lives in the store rather than in process memory.
type RateLimiter struct {
	store store.Store
}

// NewRateLimiter constructs a RateLimiter over the given store.
func NewRateLimiter(s store.Store) *RateLimiter {
	return &RateLimiter{store: s}
}

// Allow reports whether one unit of work tagged with key may proceed
// right now, given a refill rate of `rate` tokens/sec up to `burst`
// capacity.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate, burst int) (bool, error) {
	result, err := rl.store.EvalScript(ctx, tokenBucketScript,
		[]string{"ratelimit:" + key},
		rate, burst, time.Now().Unix(), 1,
	)
	if err != nil {
		return false, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "rate limit check")
	}
	n, _ := result.(int64)
	return n == 1, nil
}
