package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is the single-process fallback used when no Redis address is
// configured. Held keys expire after ttl like their Redis counterparts.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
	ttl  time.Duration
	wait time.Duration
	now  func() time.Time
	seq  uint64
}

type localEntry struct {
	seq       uint64
	expiresAt time.Time
}

func NewLocalLocker(ttl, wait time.Duration) *LocalLocker {
	return &LocalLocker{
		held: make(map[string]localEntry),
		ttl:  ttl,
		wait: wait,
		now:  time.Now,
	}
}

func (l *LocalLocker) Backend() string { return "local" }

func (l *LocalLocker) tryLock(key string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return 0, false
	}
	l.seq++
	l.held[key] = localEntry{seq: l.seq, expiresAt: now.Add(l.ttl)}
	return l.seq, true
}

func (l *LocalLocker) release(key string, seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.held[key]; ok && entry.seq == seq {
		delete(l.held, key)
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, errEmptyKey
	}
	if l.ttl <= 0 {
		return nil, errNonPositive
	}

	var seq uint64
	err := acquireWithRetry(ctx, l.wait, func() (bool, error) {
		s, ok := l.tryLock(key)
		if ok {
			seq = s
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, seq) })
	}, nil
}
