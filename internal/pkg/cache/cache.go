package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/AskFox/internal/pkg/env"
)

var (
	client    *redis.Client
	available bool
)

// SetupCache initializes the connection to the Redis compatible cache server.
// A failed ping is logged and leaves the cache marked unavailable so callers
// can fall back to direct store reads.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		available = false
		log.Printf("Warning: Could not connect to cache: %v", err)
		return
	}
	available = true
	log.Printf("Successfully connected to cache: %s", pong)
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Available reports whether the last ping succeeded.
func Available() bool {
	return client != nil && available
}

// Close releases the client connection pool.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	available = false
	return err
}
