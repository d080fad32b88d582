package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over any go-redis universal client, so
// it works unmodified against a single *redis.Client, a *redis.Ring,
// or a *redis.ClusterClient.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore wraps an already-constructed go-redis client. Use
// NewFromURL for the common single-node case.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// NewFromURL builds a RedisStore from a "redis://host:port/db"-style
// URL, or from a bare "host:port" address, matching the STORE_URL
// override named in spec.md §6.
func NewFromURL(addr string, maxConnections int) (*RedisStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	if maxConnections > 0 {
		opts.PoolSize = maxConnections
	}
	return &RedisStore{rdb: redis.NewClient(opts)}, nil
}

func (s *RedisStore) ListPushLeft(ctx context.Context, key string, value string) error {
	return s.rdb.LPush(ctx, key, value).Err()
}

func (s *RedisStore) ListPopBlocking(ctx context.Context, keys []string, timeout time.Duration) (string, string, bool, error) {
	// BRPOP scans keys in the order given and pops the tail of the
	// first non-empty list. Lanes are filled with ListPushLeft (LPUSH,
	// head insert), so popping the tail yields FIFO order within a
	// lane while still honoring the priority-ordered key scan spec.md
	// §4.2 describes. BRPOP treats a zero timeout as "block forever", so
	// a timeout <= 0 instead tries RPOP on each key once, in order,
	// without blocking.
	if timeout <= 0 {
		for _, key := range keys {
			val, err := s.rdb.RPop(ctx, key).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return "", "", false, err
			}
			return key, val, true, nil
		}
		return "", "", false, nil
	}
	result, err := s.rdb.BRPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	if len(result) != 2 {
		return "", "", false, nil
	}
	return result[0], result[1], true, nil
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZRangeByScoreLE(ctx context.Context, key string, max float64) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatFloat(max),
	}).Result()
}

func (s *RedisStore) ZRem(ctx context.Context, key string, member string) error {
	return s.rdb.ZRem(ctx, key, member).Err()
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	return s.rdb.LLen(ctx, key).Result()
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.LRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) ZPopMinLE(ctx context.Context, key string, max float64) (string, float64, bool, error) {
	result, err := popMinLEScript.Run(ctx, s.rdb, []string{key}, formatFloat(max)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", 0, false, nil
		}
		return "", 0, false, err
	}
	pair, ok := result.([]interface{})
	if !ok || len(pair) != 2 {
		return "", 0, false, nil
	}
	member, _ := pair[0].(string)
	scoreStr, _ := pair[1].(string)
	score := parseFloat(scoreStr)
	return member, score, true, nil
}

func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return s.rdb.HSet(ctx, key, args...).Err()
}

func (s *RedisStore) HGet(ctx context.Context, key string, field string) (string, bool, error) {
	val, err := s.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) HDel(ctx context.Context, key string, field string) error {
	return s.rdb.HDel(ctx, key, field).Err()
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) SetNXWithTTL(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) EvalScript(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return redis.NewScript(script).Run(ctx, s.rdb, keys, args...).Result()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// popMinLEScript atomically pops the lowest-scored member of a sorted
// set when its score is at most ARGV[1], returning {member, score}.
// Generalizes the teacher's delayed-queue Lua script in
// Client.StartScheduler into a reusable single-member primitive used by
// both retry promotion and expired-claim recovery.
var popMinLEScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local results = redis.call('ZRANGEBYSCORE', key, '-inf', max, 'WITHSCORES', 'LIMIT', 0, 1)
if #results == 0 then
	return nil
end
redis.call('ZREM', key, results[1])
return {results[1], results[2]}
`)
