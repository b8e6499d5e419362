package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/AskFox/internal/pkg/cache"
	"github.com/ManuelReschke/AskFox/internal/pkg/env"
	"github.com/ManuelReschke/AskFox/internal/pkg/usercontext"
)

// Config controls the API limiter. Zero values fall back to env defaults.
type Config struct {
	Max        int
	Expiration time.Duration
	Storage    fiber.Storage
}

// ConfigFromEnv reads API_RATE_LIMIT and API_RATE_WINDOW and, when the cache
// is reachable, counts hits in Redis so limits hold across instances.
func ConfigFromEnv() Config {
	cfg := Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration: env.GetEnvDuration("API_RATE_WINDOW", time.Minute),
	}
	if cache.Available() {
		cfg.Storage = NewRedisStorage()
	}
	return cfg
}

// NewRedisStorage builds limiter storage on the cache server's database 1
// (the entitlement cache uses DB 0).
func NewRedisStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

// New returns the limiter middleware. Authenticated callers are keyed by
// user id, everyone else by IP.
func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 120
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Expiration,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := usercontext.GetUserID(c); id != "" {
				return "user:" + id
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Warnf("ratelimit: limit reached for %s %s", c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	})
}
