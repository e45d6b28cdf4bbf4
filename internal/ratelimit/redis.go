package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript admits and counts atomically. A rejected attempt leaves the
// counter untouched, matching MemoryStore semantics.
var incrScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisStore backs counters with Redis so several instances share windows.
// Each window gets its own key and expires on its own; rollover needs no
// explicit reset.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Incr implements CounterStore.
func (s *RedisStore) Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration, limit int) (bool, error) {
	windowKey := fmt.Sprintf("paygate:rl:%s:%d", key, windowStart.Unix())
	// Keep the key one extra window beyond rollover so clock skew between
	// instances cannot resurrect a half-expired counter.
	ttl := 2 * window

	res, err := incrScript.Run(ctx, s.client, []string{windowKey}, limit, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	return res == 1, nil
}
