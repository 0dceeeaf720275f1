// Package lock provides short-lived exclusive locks keyed by string. Holders
// identify themselves with the token returned by TryLock.
package lock

import (
	"context"
	"errors"
	"time"
)

type Locker interface {
	// TryLock acquires key for ttl without waiting. ok is false when another
	// holder owns the key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release frees key if token still owns it.
	Release(ctx context.Context, key, token string) error
}

var (
	errEmptyKey   = errors.New("lock key is empty")
	errInvalidTTL = errors.New("lock ttl must be positive")
)

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	if ttl <= 0 {
		return errInvalidTTL
	}
	return nil
}
