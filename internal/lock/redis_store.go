package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua scripts make release and extend conditional on the stored token so a
// holder whose lease already lapsed cannot clobber a newer acquisition.
var (
	releaseScript = redis.NewScript(`
        if redis.call('GET', KEYS[1]) == ARGV[1] then
            return redis.call('DEL', KEYS[1])
        end
        return 0
    `)
	extendScript = redis.NewScript(`
        if redis.call('GET', KEYS[1]) == ARGV[1] then
            return redis.call('PEXPIRE', KEYS[1], ARGV[2])
        end
        return 0
    `)
)

// RedisStore is one lock-store replica backed by a dedicated redis
// instance.  Each replica must be an independent server; pointing several
// RedisStores at the same instance silently reduces the quorum to one.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client as a lock replica.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Acquire sets key=value with TTL iff the key is absent (SET NX PX).
func (s *RedisStore) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// Release deletes key only while it still holds value.
func (s *RedisStore) Release(ctx context.Context, key, value string) error {
	return releaseScript.Run(ctx, s.client, []string{key}, value).Err()
}

// Extend refreshes the TTL only while key still holds value.
func (s *RedisStore) Extend(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, s.client, []string{key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
