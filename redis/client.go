// Package redis wraps the asynq client, server and periodic scheduler used
// for background work: proactive token refresh sweeps and remote cache
// invalidation.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pulsedash/dashboard/redis/config"
)

// Client wraps the asynq producer side plus a plain Redis connection used
// for health pings.
type Client struct {
	client *asynq.Client
	rdb    *goredis.Client
	cfg    *config.RedisConfig
	mu     sync.RWMutex
}

// NewClient creates a task queue client and verifies connectivity with a
// PING.
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Client{client: client, rdb: rdb, cfg: cfg}, nil
}

// EnqueueTask submits a task to the queue. Options follow asynq's, e.g.
// asynq.Queue("critical") or asynq.Unique(ttl).
func (c *Client) EnqueueTask(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task.Type(), err)
	}

	return nil
}

// IsHealthy reports whether the Redis connection answers a PING.
func (c *Client) IsHealthy(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rdb.Ping(ctx).Err() == nil
}

// Close releases both connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.client.Close(); err != nil {
		_ = c.rdb.Close()

		return fmt.Errorf("failed to close task client: %w", err)
	}

	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}

	return nil
}
