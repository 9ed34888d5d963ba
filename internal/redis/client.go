package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by PopQueue when no item arrived within the wait.
var ErrEmpty = errors.New("redis: queue empty")

// ErrMissing is returned by Get for keys that do not exist.
var ErrMissing = errors.New("redis: key missing")

// Client wraps a go-redis client with the queue and key-value primitives the
// job system uses.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client from a URL (e.g., "redis://localhost:6379").
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	return &Client{rdb: rdb}, nil
}

// Ping verifies the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// PushQueue appends a payload to the named queue.
func (c *Client) PushQueue(ctx context.Context, queue string, payload []byte) error {
	return c.rdb.LPush(ctx, queue, payload).Err()
}

// PopQueue blocks up to wait for the next payload on the named queue.
// Returns ErrEmpty when the wait elapses without an item.
func (c *Client) PopQueue(ctx context.Context, queue string, wait time.Duration) ([]byte, error) {
	res, err := c.rdb.BRPop(ctx, wait, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	// BRPop returns [key, value].
	return []byte(res[1]), nil
}

// Set stores a value under key with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get fetches a value by key. Returns ErrMissing for absent keys.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMissing
	}
	return res, err
}
