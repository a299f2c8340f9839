package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDialTimeout = 3 * time.Second

// RedisSettings tunes the client used for throttle counters and idempotency
// records. Zero values keep the go-redis defaults.
type RedisSettings struct {
	PoolSize   int
	ClientName string
}

// NewRedisClient configures the Redis client backing throttling and idempotency
// and verifies connectivity.
func NewRedisClient(ctx context.Context, url string, settings RedisSettings) (*redis.Client, error) {
	opt, err := redisOptions(url, settings)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func redisOptions(url string, settings RedisSettings) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = redisDialTimeout
	}
	if settings.PoolSize > 0 {
		opt.PoolSize = settings.PoolSize
	}
	if settings.ClientName != "" && opt.ClientName == "" {
		opt.ClientName = settings.ClientName
	}
	return opt, nil
}
