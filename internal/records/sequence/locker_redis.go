package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"oncocentre/pkg/platform/sentinel"
)

const (
	lockKeyPrefix  = "oncocentre:sequence-lock:"
	minLockBackoff = 10 * time.Millisecond
	maxLockBackoff = 250 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired holder cannot release a lock someone else acquired since.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serialises scopes across processes sharing one Redis. The lock
// expires after ttl so a crashed holder cannot block issuance forever.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, scope string) (func(), error) {
	key := lockKeyPrefix + scope
	token := uuid.NewString()
	backoff := minLockBackoff

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire lock %s: %w: %w", scope, sentinel.ErrUnavailable, err)
		}
		if acquired {
			return l.releaser(key, token), nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxLockBackoff)
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
	}
}
