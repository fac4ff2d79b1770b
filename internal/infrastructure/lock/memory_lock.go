package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	expireAt time.Time
}

// MemoryFactory 进程内锁工厂，单实例部署或未启用 Redis 时使用
type MemoryFactory struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{
		locks: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (f *MemoryFactory) New(key, value string, expiration time.Duration) Lock {
	return &memoryLock{factory: f, key: key, value: value, expiration: expiration}
}

type memoryLock struct {
	factory    *MemoryFactory
	key        string
	value      string
	expiration time.Duration
}

func (l *memoryLock) TryLock(_ context.Context) (bool, error) {
	f := l.factory
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if e, ok := f.locks[l.key]; ok && now.Before(e.expireAt) {
		return false, nil
	}
	f.locks[l.key] = memoryEntry{value: l.value, expireAt: now.Add(l.expiration)}
	return true, nil
}

func (l *memoryLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	return retryLock(ctx, l, retryInterval, maxRetries)
}

func (l *memoryLock) Unlock(_ context.Context) error {
	f := l.factory
	f.mu.Lock()
	defer f.mu.Unlock()

	if e, ok := f.locks[l.key]; ok && e.value == l.value {
		delete(f.locks, l.key)
	}
	return nil
}
