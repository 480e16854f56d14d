package sequence

import (
	"context"
	"sync"
)

// MemoryLocker serialises scopes within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{sems: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, scope string) (func(), error) {
	sem := l.semaphore(scope)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-sem }) }, nil
}

func (l *MemoryLocker) semaphore(scope string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.sems[scope]
	if !ok {
		sem = make(chan struct{}, 1)
		l.sems[scope] = sem
	}
	return sem
}
