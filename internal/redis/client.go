package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options carries the connection settings the config layer resolved
// from the environment. Zero values fall back to the defaults below.
type Options struct {
	Addr     string
	Username string
	Password string
	Timeout  time.Duration // read/write timeout
	PoolSize int
}

const (
	defaultTimeout  = 2 * time.Second
	defaultPoolSize = 10
)

func NewRedisClient(opts Options) (*redis.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           0,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
