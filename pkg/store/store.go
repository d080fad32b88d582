// Package store abstracts the backing key-value/list/sorted-set store
// the queue runs on. It exposes the primitives spec'd for the Store
// Adapter: list push/pop, sorted-set range/pop, hash get/set, key TTL,
// and atomic script evaluation. The only implementation shipped here is
// backed by Redis via github.com/redis/go-redis/v9, but callers program
// against the Store interface so a future adapter (or a test double)
// can stand in.
package store

import (
	"context"
	"time"
)

// Z is one member/score pair for sorted-set operations, mirroring
// redis.Z without leaking the go-redis type to callers.
type Z struct {
	Score  float64
	Member string
}

// Store is the set of atomic operations the queue, scheduler, and
// worker runtime are built on.
type Store interface {
	// ListPushLeft pushes value onto the head of the list at key.
	ListPushLeft(ctx context.Context, key string, value string) error

	// ListPopBlocking pops the tail element of the first ready key
	// among keys, scanned in the order given, blocking up to timeout
	// (timeout <= 0 means no wait). It returns ok=false with no error
	// on timeout.
	ListPopBlocking(ctx context.Context, keys []string, timeout time.Duration) (key, value string, ok bool, err error)

	// ZAdd adds member to the sorted set at key with the given score.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRangeByScoreLE returns members scored at most max, ascending.
	ZRangeByScoreLE(ctx context.Context, key string, max float64) ([]string, error)

	// ZRem removes member from the sorted set at key.
	ZRem(ctx context.Context, key string, member string) error

	// ZCard returns the number of members in the sorted set at key.
	ZCard(ctx context.Context, key string) (int64, error)

	// LLen returns the number of elements in the list at key.
	LLen(ctx context.Context, key string) (int64, error)

	// LRange returns elements [start, stop] (inclusive, 0-indexed) of
	// the list at key without removing them.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZPopMinLE atomically pops the lowest-scored member if its score
	// is at most max. ok=false when nothing qualifies.
	ZPopMinLE(ctx context.Context, key string, max float64) (member string, score float64, ok bool, err error)

	// HSet sets one or more fields on the hash at key.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGet reads a single field from the hash at key.
	HGet(ctx context.Context, key string, field string) (string, bool, error)

	// HDel removes a field from the hash at key.
	HDel(ctx context.Context, key string, field string) error

	// HGetAll reads every field of the hash at key.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// SetWithTTL stores value at key, expiring after ttl. ttl<=0 means
	// no expiry.
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error

	// Expire sets (or refreshes) the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Get reads the string value at key. ok=false when absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Del removes one or more keys.
	Del(ctx context.Context, keys ...string) error

	// SetNXWithTTL sets key to value only if it does not already
	// exist, expiring after ttl. Used for the scheduler's advisory
	// lock. ok=false means the key was already held.
	SetNXWithTTL(ctx context.Context, key string, value string, ttl time.Duration) (ok bool, err error)

	// EvalScript runs a Lua script atomically against the given keys
	// and positional args, returning the script's raw return value.
	EvalScript(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)

	// Ping verifies connectivity to the store.
	Ping(ctx context.Context) error

	// Close releases any held connections.
	Close() error
}
