//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"oncocentre/internal/platform/config"
	platformRedis "oncocentre/internal/platform/redis"
)

// RedisContainer is a throwaway Redis reached through the same client
// constructor the application uses.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

// NewRedisContainer starts redis:7-alpine and connects to it.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err == nil {
		var client *platformRedis.Client
		client, err = platformRedis.New(ctx, config.RedisConfig{
			URL:         url,
			PoolSize:    4,
			DialTimeout: 5 * time.Second,
		})
		if err == nil {
			return &RedisContainer{Container: container, URL: url, Client: client.Client}
		}
	}
	_ = container.Terminate(ctx)
	t.Fatalf("connect to redis container: %v", err)
	return nil
}

// FlushAll empties every database so suites start clean.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
