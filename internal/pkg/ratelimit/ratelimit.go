package ratelimit

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/ManuelReschke/subscription-engine/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultMax        = 60
	DefaultExpiration = time.Minute
	// limiter counters live in their own database, the plan cache uses DB 0
	storageDatabase = 2
)

type Config struct {
	Max        int
	Expiration time.Duration
	// Skip paths are never counted. Gateway retries must not be throttled.
	Skip []string
	// KeyFunc identifies the caller, defaults to c.IP().
	KeyFunc func(c *fiber.Ctx) string
	Storage fiber.Storage
}

// ConfigFromEnv reads RATE_LIMIT_MAX and RATE_LIMIT_WINDOW (seconds).
func ConfigFromEnv() Config {
	return Config{
		Max:        env.GetInt("RATE_LIMIT_MAX", DefaultMax),
		Expiration: env.GetSeconds("RATE_LIMIT_WINDOW", DefaultExpiration),
	}
}

// NewRedisStorage builds limiter storage on the same server as the cache
// client. Returns nil when there is no reachable server so the limiter stays
// in memory; redis.New panics on a failed ping.
func NewRedisStorage(client *goredis.Client) fiber.Storage {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: client.Options().Password,
		Database: storageDatabase,
		Reset:    false,
	})
}

func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultExpiration
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}
	skip := make(map[string]struct{}, len(cfg.Skip))
	for _, p := range cfg.Skip {
		skip[p] = struct{}{}
	}

	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Expiration,
		Storage:    cfg.Storage,
		Next: func(c *fiber.Ctx) bool {
			_, ok := skip[c.Path()]
			return ok
		},
		KeyGenerator: keyFunc,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	})
}
