package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript increments the window counter, starting the window's expiry
// on the first call. Over quota it returns the remaining window in ms.
var acquireScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if count > tonumber(ARGV[1]) then
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
		ttl = tonumber(ARGV[2])
	end
	return ttl
end
return 0
`)

// RedisWindow shares the fixed window across relay replicas.
type RedisWindow struct {
	client redis.Scripter
	key    string
	quota  int
	window time.Duration
}

// NewRedisWindow returns a counter stored under key.
func NewRedisWindow(client redis.Scripter, key string, quota int, window time.Duration) *RedisWindow {
	if client == nil {
		panic("resilience: redis client cannot be nil")
	}
	if quota <= 0 {
		quota = DefaultQuota
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisWindow{
		client: client,
		key:    fmt.Sprintf("ratelimit:%s", key),
		quota:  quota,
		window: window,
	}
}

// Acquire implements WindowCounter.
func (w *RedisWindow) Acquire(ctx context.Context) (time.Duration, error) {
	ms, err := acquireScript.Run(ctx, w.client, []string{w.key}, w.quota, w.window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("resilience: acquire redis window: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
