package ratelimiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryBackend keeps windows in a process-local map. Counts are not shared
// between instances, so the effective global limit is max times the number of
// running instances.
type MemoryBackend struct {
	mu     sync.Mutex
	data   map[string]*Entry
	logger *zap.Logger
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

type MemoryOption func(*MemoryBackend)

func WithMemoryLogger(logger *zap.Logger) MemoryOption {
	return func(mb *MemoryBackend) {
		mb.logger = logger
	}
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(mb *MemoryBackend) {
		mb.now = now
	}
}

// NewMemoryBackend starts the cleanup worker when cleanupInterval is positive.
// The worker stops when ctx is cancelled or Close is called.
func NewMemoryBackend(ctx context.Context, cleanupInterval time.Duration, opts ...MemoryOption) *MemoryBackend {
	mb := &MemoryBackend{
		data:   make(map[string]*Entry),
		logger: zap.NewNop(),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(mb)
	}

	if cleanupInterval <= 0 {
		close(mb.done)
		mb.cancel = func() {}
		return mb
	}

	ctx, mb.cancel = context.WithCancel(ctx)
	go mb.startCleanupWorker(ctx, cleanupInterval)

	return mb
}

func (mb *MemoryBackend) Read(_ context.Context, identifier string, now time.Time) (*Entry, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	entry, exists := mb.data[identifier]
	if !exists || entry.expired(now) {
		return nil, nil
	}
	copyEntry := *entry
	return &copyEntry, nil
}

func (mb *MemoryBackend) IncrementWindow(_ context.Context, identifier string, max int64, window time.Duration, now time.Time) (*Entry, bool, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	entry, exists := mb.data[identifier]
	admitted := true
	switch {
	case !exists || entry.expired(now):
		entry = &Entry{
			Identifier: identifier,
			Count:      1,
			ResetTime:  now.Add(window),
		}
		mb.data[identifier] = entry
	case entry.Count >= max:
		admitted = false
	default:
		entry.Count++
	}

	copyEntry := *entry
	return &copyEntry, admitted, nil
}

func (mb *MemoryBackend) Delete(_ context.Context, identifier string) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	delete(mb.data, identifier)
	return nil
}

func (mb *MemoryBackend) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	return len(mb.data)
}

// Sweep drops every entry whose window ended at or before now and returns
// how many were removed.
func (mb *MemoryBackend) Sweep(now time.Time) int {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	count := 0
	for identifier, entry := range mb.data {
		if entry.expired(now) {
			delete(mb.data, identifier)
			count++
		}
	}
	return count
}

func (mb *MemoryBackend) Close() error {
	mb.cancel()
	<-mb.done
	return nil
}

func (mb *MemoryBackend) startCleanupWorker(ctx context.Context, interval time.Duration) {
	defer close(mb.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := mb.Sweep(mb.now()); removed > 0 {
				mb.logger.Debug("rate limit cleanup complete", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			mb.logger.Debug("rate limit cleanup worker stopped")
			return
		}
	}
}
