package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillboard/quillboard/config"
)

var (
	redisOnce   sync.Once
	redisClient *redis.Client
)

// GetRedis lazily builds the shared Redis client. Redis backs the response
// cache and token revocation; both degrade gracefully when it is down, so a
// failed ping is logged and the client is still handed out for retries.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		redisClient = redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil && Sugar != nil {
			Sugar.Warnf("redis unreachable at startup, caching disabled until it recovers: %v", err)
		}
	})
	return redisClient
}
