package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localEntry struct {
	token     string
	expiresAt time.Time
}

// LocalLocker holds locks in process memory. It serializes holders within a
// single replica only.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	nowFn func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  make(map[string]localEntry),
		nowFn: time.Now,
	}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if cur, ok := l.held[key]; ok && now.Before(cur.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}
