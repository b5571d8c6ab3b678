package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, normalize([]string{"c", "a", "b", "a", "c"}))
	assert.Empty(t, normalize(nil))
}

func TestMemoryLocker_SerializesSameKey(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "k")
			if err != nil {
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestMemoryLocker_ContextCancelled(t *testing.T) {
	l := NewMemoryLocker()
	unlock, err := l.Lock(context.Background(), "a", "b")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryLocker_UnlockIsIdempotent(t *testing.T) {
	l := NewMemoryLocker()
	unlock, err := l.Lock(context.Background(), "a", "a")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = l.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client, zap.NewNop(), 5*time.Second)
	l.attempts = 3
	l.backoff = time.Millisecond
	return l, mr
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "lock:stock:2", "lock:stock:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:stock:1"))
	assert.True(t, mr.Exists("lock:stock:2"))

	_, err = l.Lock(ctx, "lock:stock:1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	assert.False(t, mr.Exists("lock:stock:1"))
	assert.False(t, mr.Exists("lock:stock:2"))

	unlock, err = l.Lock(ctx, "lock:stock:1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_PartialFailureReleasesHeld(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("b", "someone-else"))

	_, err := l.Lock(ctx, "a", "b")
	require.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, mr.Exists("a"))

	got, err := mr.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_ReleaseKeepsForeignKey(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, mr.Set("a", "new-owner"))
	unlock()

	got, err := mr.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "new-owner", got)
}
