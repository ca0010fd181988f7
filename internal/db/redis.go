package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RDB backs the shared rate limiter. It stays nil when Redis is not
// configured.
var RDB *redis.Client

// InitRedis connects to addr and pings it until ctx ends. The client is
// published in RDB only once it answers.
func InitRedis(ctx context.Context, addr string) error {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	if err := retry(ctx, "redis", func() error { return client.Ping(ctx).Err() }); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis %s: %w", addr, err)
	}
	RDB = client
	return nil
}

func CloseRedis() error {
	if RDB == nil {
		return nil
	}
	err := RDB.Close()
	RDB = nil
	return err
}
