package spool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a spool backed by a Redis list, for gateways that need the
// buffer to survive process restarts.
type Redis struct {
	client *redis.Client
	key    string
	cap    int64
}

// NewRedis connects to Redis and returns a spool on list key. A failed
// ping is logged by the caller's stack, not fatal: the device may come up
// before its local Redis does.
func NewRedis(addr, password string, db int, key string, capacity int64) (*Redis, error) {
	if key == "" {
		return nil, fmt.Errorf("spool: redis key required")
	}
	if capacity <= 0 {
		capacity = 1024
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return &Redis{client: rdb, key: key, cap: capacity},
			fmt.Errorf("spool: redis ping %s: %w", addr, err)
	}
	return &Redis{client: rdb, key: key, cap: capacity}, nil
}

func (r *Redis) Enqueue(ctx context.Context, payload []byte) error {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return fmt.Errorf("spool: redis llen: %w", err)
	}
	if n >= r.cap {
		return ErrFull
	}
	if err := r.client.LPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("spool: redis lpush: %w", err)
	}
	return nil
}

func (r *Redis) Dequeue(ctx context.Context) ([]byte, error) {
	// RPOP pairs with LPUSH for FIFO order.
	payload, err := r.client.RPop(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("spool: redis rpop: %w", err)
	}
	return payload, nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("spool: redis llen: %w", err)
	}
	return int(n), nil
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
