package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// NewRedis returns a client with short timeouts. Blocking queue reads
// pass their own deadline.
func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// PingRedis verifies redis connectivity.
func PingRedis(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return errors.New("redis not configured")
	}
	return errors.Wrap(client.Ping(ctx).Err(), "redis ping")
}
