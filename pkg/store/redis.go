package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient defines the Redis operations used by RedisStore.
// NewGoRedisClient adapts a go-redis client to it.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) RedisStatusCmd
	Get(ctx context.Context, key string) RedisStringCmd
	Del(ctx context.Context, keys ...string) RedisIntCmd
	Close() error
}

// RedisStatusCmd represents a Redis status command result.
type RedisStatusCmd interface {
	Err() error
}

// RedisStringCmd represents a Redis string command result.
type RedisStringCmd interface {
	Bytes() ([]byte, error)
	Err() error
}

// RedisIntCmd represents a Redis int command result.
type RedisIntCmd interface {
	Err() error
}

// ErrRedisNil is returned when a key doesn't exist in Redis.
var ErrRedisNil = redis.Nil

// RedisStore is a Redis-backed Store. Attributes never expire.
type RedisStore struct {
	client RedisClient
	prefix string
	closed atomic.Bool
}

// RedisOption configures RedisStore behavior.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix string
}

// WithRedisPrefix sets the key prefix.
// Default: "ihi:attr:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed Store.
func NewRedisStore(client RedisClient, opts ...RedisOption) *RedisStore {
	cfg := &redisConfig{
		prefix: "ihi:attr:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.prefix,
	}
}

// key returns the Redis key for an attribute.
func (r *RedisStore) key(entity, key string) string {
	return r.prefix + entity + ":" + key
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, entity, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed
	}

	data, err := r.client.Get(ctx, r.key(entity, key)).Bytes()
	if err != nil {
		if errors.Is(err, ErrRedisNil) {
			return nil, keyErr("get", entity, key, ErrNotFound)
		}
		return nil, keyErr("get", entity, key, err)
	}
	return data, nil
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, entity, key string, value []byte) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	return keyErr("set", entity, key, r.client.Set(ctx, r.key(entity, key), value, 0).Err())
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, entity, key string) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	return keyErr("delete", entity, key, r.client.Del(ctx, r.key(entity, key)).Err())
}

// Close implements Store and closes the client.
func (r *RedisStore) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}

// goRedis adapts a go-redis client to RedisClient.
type goRedis struct {
	c redis.UniversalClient
}

// NewGoRedisClient wraps c for use with NewRedisStore.
func NewGoRedisClient(c redis.UniversalClient) RedisClient {
	return goRedis{c: c}
}

func (g goRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) RedisStatusCmd {
	return g.c.Set(ctx, key, value, expiration)
}

func (g goRedis) Get(ctx context.Context, key string) RedisStringCmd {
	return g.c.Get(ctx, key)
}

func (g goRedis) Del(ctx context.Context, keys ...string) RedisIntCmd {
	return g.c.Del(ctx, keys...)
}

func (g goRedis) Close() error {
	return g.c.Close()
}

// OpenRedis connects to the server at url (redis://[user:pass@]host:port/db)
// and returns a store that owns the client.
func OpenRedis(ctx context.Context, url string, opts ...RedisOption) (*RedisStore, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(NewGoRedisClient(client), opts...), nil
}
