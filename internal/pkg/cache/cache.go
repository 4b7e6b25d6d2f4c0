package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/subscription-engine/internal/pkg/env"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var client *redis.Client

// SetupCache connects to the Redis-compatible cache. A failed ping is logged
// and the client is kept; callers fall back to the database on cache errors.
func SetupCache(log zerolog.Logger) *redis.Client {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetInt("CACHE_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", client.Options().Addr).Msg("could not connect to cache")
	} else {
		log.Info().Str("addr", client.Options().Addr).Msg("connected to cache")
	}
	return client
}

// GetClient returns the client created by SetupCache, or nil.
func GetClient() *redis.Client {
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(ctx context.Context, c *redis.Client, key string, value interface{}, expiration time.Duration) error {
	return c.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(ctx context.Context, c *redis.Client, key string) (string, error) {
	return c.Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(ctx context.Context, c *redis.Client, key string) error {
	return c.Del(ctx, key).Err()
}
