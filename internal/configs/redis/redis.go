// Package redis builds the client for the optional networked storage
// adapter.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Opt applies a setting to the redis options before connecting.
type Opt func(*redis.Options)

// New connects to Redis and verifies the connection with a ping.
func New(addr, password string, db int, opts ...Opt) (*redis.Client, error) {
	options := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// WithDialTimeout sets the dial timeout to the first positive value.
func WithDialTimeout(timeouts ...time.Duration) Opt {
	return func(o *redis.Options) {
		for _, t := range timeouts {
			if t > 0 {
				o.DialTimeout = t
				break
			}
		}
	}
}
