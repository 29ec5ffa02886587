package ratelimiter

import (
	"context"
	"time"
)

// Backend is the counter store the fixed-window algorithm runs against.
//
// IncrementWindow must execute as one atomic unit per identifier: open a new
// window when the entry is absent or expired, refuse without incrementing when
// the live count already reached max, and increment otherwise. The returned
// bool reports whether the action was admitted.
type Backend interface {
	Read(ctx context.Context, identifier string, now time.Time) (*Entry, error)
	IncrementWindow(ctx context.Context, identifier string, max int64, window time.Duration, now time.Time) (*Entry, bool, error)
	Delete(ctx context.Context, identifier string) error
	Close() error
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*RedisBackend)(nil)
)
