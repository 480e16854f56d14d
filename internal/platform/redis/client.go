// Package redis connects the year locker to a shared Redis when several
// workstations register patients against one database.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"oncocentre/internal/platform/config"
)

// Client is the pooled connection plus a readiness probe.
type Client struct {
	*redis.Client
}

// New dials cfg.URL and pings once. An empty URL yields a nil client and no
// error. Zero pool and timeout fields keep the go-redis defaults.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return &Client{Client: client}, nil
}

// Health is wired into /readyz.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
