// Package cache wraps the Redis client behind the small interface the rating services need.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aimd54/addon-ratings/internal/config"
)

// Cache is the key/value store used for read-through caches and throttle counters.
// Get returns the empty string for a missing key.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	// TakeSlots atomically checks every counter against its limit. Only when
	// all have room is each one incremented and given its TTL. It returns the
	// counts seen before the attempt; missing keys read as 0.
	TakeSlots(ctx context.Context, slots []Slot) (counts []int64, taken bool, err error)
	Health(ctx context.Context) error
	Close() error
}

// RedisCache implements Cache on go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and checks the connection.
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves a value.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

// Set stores a value.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Del deletes keys.
func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Incr increments a key.
func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return val, nil
}

// Expire sets the expiration of a key.
func (c *RedisCache) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if err := c.client.Expire(ctx, key, expiration).Err(); err != nil {
		return fmt.Errorf("failed to expire %s: %w", key, err)
	}
	return nil
}

// takeSlotsScript replies with {taken, count1, count2, ...}.
// KEYS are the counters, ARGV holds the limits followed by the TTLs in ms.
var takeSlotsScript = redis.NewScript(`
local n = #KEYS
local reply = {1}
for i = 1, n do
	local count = tonumber(redis.call('GET', KEYS[i]) or '0')
	if count == nil then
		return redis.error_reply('counter ' .. KEYS[i] .. ' is not an integer')
	end
	reply[i + 1] = count
	if count >= tonumber(ARGV[i]) then
		reply[1] = 0
	end
end
if reply[1] == 1 then
	for i = 1, n do
		redis.call('INCR', KEYS[i])
		redis.call('PEXPIRE', KEYS[i], ARGV[n + i])
	end
end
return reply
`)

// Slot is one fixed-window counter and its limit.
type Slot struct {
	Key   string
	Limit int64
	TTL   time.Duration
}

// TakeSlots runs the check and the increments as one Lua script.
func (c *RedisCache) TakeSlots(ctx context.Context, slots []Slot) ([]int64, bool, error) {
	if len(slots) == 0 {
		return nil, true, nil
	}
	keys := make([]string, len(slots))
	args := make([]interface{}, 0, 2*len(slots))
	for i, slot := range slots {
		keys[i] = slot.Key
		args = append(args, slot.Limit)
	}
	for _, slot := range slots {
		args = append(args, slot.TTL.Milliseconds())
	}

	reply, err := takeSlotsScript.Run(ctx, c.client, keys, args...).Int64Slice()
	if err != nil {
		return nil, false, fmt.Errorf("failed to take throttle slots: %w", err)
	}
	if len(reply) != len(slots)+1 {
		return nil, false, fmt.Errorf("unexpected throttle script reply of %d values", len(reply))
	}
	return reply[1:], reply[0] == 1, nil
}

// Health pings Redis.
func (c *RedisCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
