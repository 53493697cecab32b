package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "order-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := k.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctxB, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlockB, err := k.Lock(ctxB, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancelWhileWaiting(t *testing.T) {
	k := NewKeyedMutex()

	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Equal(t, 0, k.size())
}

type mockLocker struct {
	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseFunc func(ctx context.Context, key, token string) error
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return m.TryLockFunc(ctx, key, ttl)
}

func (m *mockLocker) Release(ctx context.Context, key, token string) error {
	return m.ReleaseFunc(ctx, key, token)
}

func TestAcquire_RetriesUntilFree(t *testing.T) {
	attempts := 0
	l := &mockLocker{
		TryLockFunc: func(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
			attempts++
			return "tok", attempts == 3, nil
		},
	}

	token, ok, err := Acquire(context.Background(), l, "k", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
	assert.Equal(t, 3, attempts)
}

func TestAcquire_GivesUpWhenContextEnds(t *testing.T) {
	l := &mockLocker{
		TryLockFunc: func(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
			return "", false, nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, ok, err := Acquire(ctx, l, "k", time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquire_PropagatesErrors(t *testing.T) {
	l := &mockLocker{
		TryLockFunc: func(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
			return "", false, errors.New("connection refused")
		},
	}

	_, _, err := Acquire(context.Background(), l, "k", time.Second, time.Millisecond)
	assert.Error(t, err)
}

func TestRedisLocker_ValidatesInput(t *testing.T) {
	var nilLocker *RedisLocker
	_, _, err := nilLocker.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, nilLocker.Release(context.Background(), "k", "tok"))

	assert.Nil(t, NewRedisLocker(nil))
}

func TestRedisLocker_ExclusiveAndTokenChecked(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test redis not available: %v", err)
	}
	defer client.FlushDB(ctx)

	l := NewRedisLocker(client)

	token, ok, err := l.TryLock(ctx, "poll:ord-1", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "poll:ord-1", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "poll:ord-1", "someone-else"))
	_, ok, _ = l.TryLock(ctx, "poll:ord-1", 5*time.Second)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "poll:ord-1", token))
	_, ok, err = l.TryLock(ctx, "poll:ord-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
