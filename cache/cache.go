// Package cache stores ranked search results between identical queries.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClientRequired is returned when a Redis cache is built without a client.
var ErrClientRequired = errors.New("redis client required")

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value of key. found is false on a miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set stores value under key for ttl. A ttl of zero keeps the key until evicted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// NullCache never stores anything.
type NullCache struct{}

var _ Cache = NullCache{}

func (NullCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NullCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NullCache) Close() error {
	return nil
}
