package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker реализует распределённую блокировку через SET NX с TTL.
// Снятие выполняется Lua-скриптом и удаляет ключ, только если он принадлежит владельцу.
type RedisLocker struct {
	client   redis.UniversalClient
	logger   *zap.Logger
	ttl      time.Duration
	attempts int
	backoff  time.Duration
}

// NewRedisLocker создаёт RedisLocker.
func NewRedisLocker(client redis.UniversalClient, logger *zap.Logger, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:   client,
		logger:   logger,
		ttl:      ttl,
		attempts: 50,
		backoff:  20 * time.Millisecond,
	}
}

// Lock захватывает ключи по порядку. Если какой-то ключ не удалось получить,
// уже полученные освобождаются и возвращается ErrNotAcquired.
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))

	release := func() {
		// Снимаем даже после отмены исходного контекста.
		ctx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(ctx, l.client, []string{held[i]}, token).Err(); err != nil {
				l.logger.Error("failed to release lock", zap.String("key", held[i]), zap.Error(err))
			}
		}
	}

	for _, k := range keys {
		if err := l.acquire(ctx, k, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, k)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	for i := 0; i < l.attempts; i++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	return fmt.Errorf("%w: %s", ErrNotAcquired, key)
}
