package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"lineage/api/internal/util"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares locks between API instances through Redis.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker connects to redisURL and verifies the connection.
func NewRedisLocker(redisURL string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLockerWithClient(client, ttl), nil
}

func NewRedisLockerWithClient(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: "lineage:lock:",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

func (l *RedisLocker) key(name string) string {
	return l.prefix + name
}

// Acquire polls until the key is free or ctx is done. The lock expires after
// the configured TTL if the holder never releases it.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), error) {
	key := l.key(name)
	token := util.NewID("lock")
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.Join(ErrNotAcquired, ctxErr)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", name, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				log.Printf("release lock %s: %v", name, err)
			}
		})
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
