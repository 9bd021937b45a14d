package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by RedisCache.
const DefaultKeyPrefix = "skimap:"

// RedisCache implements Cache on a Redis server.
type RedisCache struct {
	client    *redis.Client
	prefix    string
	ownClient bool
}

var _ Cache = (*RedisCache)(nil)

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// NewRedisCache wraps an existing client. The caller keeps ownership of it.
func NewRedisCache(client *redis.Client, opts ...RedisOption) (*RedisCache, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	c := &RedisCache{
		client: client,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OpenRedis connects to addr and verifies the connection with PING.
// The returned cache closes its client on Close.
func OpenRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	c, err := NewRedisCache(client, opts...)
	if err != nil {
		return nil, err
	}
	c.ownClient = true
	return c, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Close closes the client if OpenRedis created it.
func (c *RedisCache) Close() error {
	if !c.ownClient {
		return nil
	}
	return c.client.Close()
}
