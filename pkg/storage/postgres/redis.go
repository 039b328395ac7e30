package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// RedisClient caches identity-to-role-name lookups. Role names are the
// only cached value: resolved ACLs are recomputed on every check, so a
// stale cache can delay a grant or revocation by at most the TTL without
// ever mixing organizations.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// ErrCacheMiss is returned when a key is absent from the cache
var ErrCacheMiss = redis.Nil

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client, ttl: cfg.CacheTTL}, nil
}

// NewRedisClientFromExisting wraps an already constructed client. Used
// by tests with miniredis.
func NewRedisClientFromExisting(client *redis.Client, ttl time.Duration) *RedisClient {
	return &RedisClient{client: client, ttl: ttl}
}

func roleNamesKey(orgID, identity string) string {
	return fmt.Sprintf("roles:%s:%s", orgID, identity)
}

// GetRoleNames returns the cached role names for an identity. A cached
// empty list is a valid hit, distinct from a miss; misses return
// ErrCacheMiss.
func (c *RedisClient) GetRoleNames(ctx context.Context, orgID, identity string) ([]string, error) {
	data, err := c.client.Get(ctx, roleNamesKey(orgID, identity)).Result()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	names := []string{}
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		// Corrupt entry: drop it and report a miss.
		c.client.Del(ctx, roleNamesKey(orgID, identity))
		return nil, ErrCacheMiss
	}
	return names, nil
}

// SetRoleNames caches the role names for an identity with the configured
// TTL. An empty list is cached too, so identities with no bindings do
// not hammer the database.
func (c *RedisClient) SetRoleNames(ctx context.Context, orgID, identity string, names []string) error {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to marshal role names: %w", err)
	}
	return c.client.Set(ctx, roleNamesKey(orgID, identity), data, c.ttl).Err()
}

// InvalidateIdentity removes the cached role names for one identity
func (c *RedisClient) InvalidateIdentity(ctx context.Context, orgID, identity string) error {
	return c.client.Del(ctx, roleNamesKey(orgID, identity)).Err()
}

// InvalidateOrg removes every cached lookup for an organization. Used
// after bulk administrative changes.
func (c *RedisClient) InvalidateOrg(ctx context.Context, orgID string) error {
	pattern := fmt.Sprintf("roles:%s:*", orgID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return nil
}

// Client returns the underlying Redis client, shared with the rate
// limiter and health checks
func (c *RedisClient) Client() *redis.Client {
	return c.client
}

// Ping checks Redis connectivity
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// PoolStats returns connection pool statistics
func (c *RedisClient) PoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}
