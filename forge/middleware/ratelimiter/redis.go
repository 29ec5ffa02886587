package ratelimiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix    = "picforge:ratelimit"
	DefaultRedisTimeout = 250 * time.Millisecond
)

// incrementWindowScript opens, refuses or increments a window in one step.
// KEYS[1] is the entry key. ARGV is now (epoch ms), window (ms) and max.
// The hash holds the count and the window end, which alone decides admission.
// The key expires window ms after it opens, measured on the server's clock.
var incrementWindowScript = redis.NewScript(`
local vals = redis.call('HMGET', KEYS[1], 'count', 'reset')
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local count = tonumber(vals[1] or 0) or 0
local reset = tonumber(vals[2] or 0) or 0

if count == 0 or reset <= now then
	reset = now + window
	redis.call('HSET', KEYS[1], 'count', 1, 'reset', reset)
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, reset, 1}
end

if count >= max then
	return {count, reset, 0}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, reset, 1}
`)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Timeout   time.Duration
	KeyPrefix string
}

// RedisBackend shares windows between instances through Redis.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	timeout   time.Duration
}

func NewRedisBackend(cfg RedisConfig) *RedisBackend {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisBackend(client, cfg.KeyPrefix, cfg.Timeout)
}

func newRedisBackend(client *redis.Client, keyPrefix string, timeout time.Duration) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if timeout <= 0 {
		timeout = DefaultRedisTimeout
	}
	return &RedisBackend{
		client:    client,
		keyPrefix: keyPrefix,
		timeout:   timeout,
	}
}

func (rb *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rb.timeout)
	defer cancel()

	if err := rb.client.Ping(ctx).Err(); err != nil {
		return backendError("ping", err)
	}
	return nil
}

func (rb *RedisBackend) Read(ctx context.Context, identifier string, now time.Time) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, rb.timeout)
	defer cancel()

	vals, err := rb.client.HMGet(ctx, rb.key(identifier), "count", "reset").Result()
	if err != nil {
		return nil, backendError("read", err)
	}

	count, ok := parseInt(vals[0])
	if !ok {
		return nil, nil
	}
	reset, ok := parseInt(vals[1])
	if !ok {
		return nil, nil
	}

	entry := &Entry{
		Identifier: identifier,
		Count:      count,
		ResetTime:  time.UnixMilli(reset),
	}
	if entry.expired(now) {
		return nil, nil
	}
	return entry, nil
}

func (rb *RedisBackend) IncrementWindow(ctx context.Context, identifier string, max int64, window time.Duration, now time.Time) (*Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, rb.timeout)
	defer cancel()

	res, err := incrementWindowScript.Run(ctx, rb.client,
		[]string{rb.key(identifier)},
		now.UnixMilli(), window.Milliseconds(), max,
	).Int64Slice()
	if err != nil {
		return nil, false, backendError("increment", err)
	}
	if len(res) != 3 {
		return nil, false, backendError("increment", fmt.Errorf("unexpected script reply %v", res))
	}

	entry := &Entry{
		Identifier: identifier,
		Count:      res[0],
		ResetTime:  time.UnixMilli(res[1]),
	}
	return entry, res[2] == 1, nil
}

func (rb *RedisBackend) Delete(ctx context.Context, identifier string) error {
	ctx, cancel := context.WithTimeout(ctx, rb.timeout)
	defer cancel()

	if err := rb.client.Del(ctx, rb.key(identifier)).Err(); err != nil {
		return backendError("delete", err)
	}
	return nil
}

func (rb *RedisBackend) Close() error {
	return rb.client.Close()
}

func (rb *RedisBackend) key(identifier string) string {
	return rb.keyPrefix + ":" + identifier
}

func parseInt(v interface{}) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
