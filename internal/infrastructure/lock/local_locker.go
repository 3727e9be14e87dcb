package lock

import (
	"context"
	"sync"
)

// LocalLocker 进程内按 key 加锁，单实例或内存存储使用
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, s)
		return ctx.Err()
	}
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	s := l.slots[key]
	l.mu.Unlock()
	<-s.ch
	l.drop(key, s)
}

func (l *LocalLocker) drop(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

func (l *LocalLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = sortedUnique(keys)
	held := make([]string, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}

	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}
