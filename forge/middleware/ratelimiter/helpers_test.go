package ratelimiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().Truncate(time.Millisecond)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	backend := newRedisBackend(redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	}), "test:ratelimit", time.Second)
	t.Cleanup(func() { _ = backend.Close() })

	return backend, mr
}

func setupTestMemory(t *testing.T) *MemoryBackend {
	t.Helper()

	backend := NewMemoryBackend(context.Background(), 0)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

// backendFactories lets a test run once per counter store.
func backendFactories() map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return setupTestMemory(t)
		},
		"redis": func(t *testing.T) Backend {
			backend, _ := setupTestRedis(t)
			return backend
		},
	}
}

type failingBackend struct {
	calls int
}

func (f *failingBackend) Read(context.Context, string, time.Time) (*Entry, error) {
	f.calls++
	return nil, backendError("read", errors.New("connection refused"))
}

func (f *failingBackend) IncrementWindow(context.Context, string, int64, time.Duration, time.Time) (*Entry, bool, error) {
	f.calls++
	return nil, false, backendError("increment", errors.New("connection refused"))
}

func (f *failingBackend) Delete(context.Context, string) error {
	return backendError("delete", errors.New("connection refused"))
}

func (f *failingBackend) Close() error {
	return nil
}
