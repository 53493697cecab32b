package lock

import (
	"context"
	"time"
)

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Acquire retries TryLock every interval until the lock is taken or ctx is
// done. ok is false when ctx ran out first.
func Acquire(ctx context.Context, l Locker, key string, ttl, interval time.Duration) (string, bool, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			if ctx.Err() != nil {
				return "", false, nil
			}
			return "", false, err
		}
		if ok {
			return token, true, nil
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", false, nil
		case <-t.C:
		}
	}
}
