// Package presence decides how often a user's lastSeen marker is written.
// Every message send touches lastSeen; the throttle keeps busy senders from
// turning each message into two document writes.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Throttle reports whether lastSeen for email may be written now.
type Throttle interface {
	Allow(ctx context.Context, email string) (bool, error)
	Close() error
}

// Always allows every touch.
type Always struct{}

func (Always) Allow(context.Context, string) (bool, error) { return true, nil }
func (Always) Close() error                                { return nil }

// RedisThrottle admits one touch per user per window, shared across every
// server instance pointing at the same Redis.
type RedisThrottle struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisThrottle connects using a redis:// URL and verifies the connection.
func NewRedisThrottle(ctx context.Context, url string, window time.Duration) (*RedisThrottle, error) {
	if url == "" {
		return nil, errors.New("redis: url is empty")
	}
	if window <= 0 {
		return nil, errors.New("redis: throttle window must be positive")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisThrottleWithClient(c, window), nil
}

func NewRedisThrottleWithClient(c *redis.Client, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: c, window: window, prefix: "firechat:lastseen:"}
}

// Ensure interface compliance at compile time
var _ Throttle = (*RedisThrottle)(nil)
var _ Throttle = Always{}

func (r *RedisThrottle) Allow(ctx context.Context, email string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+email, time.Now().Unix(), r.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx: %w", err)
	}
	return ok, nil
}

func (r *RedisThrottle) Close() error {
	return r.client.Close()
}
