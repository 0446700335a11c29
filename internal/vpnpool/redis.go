// ABOUTME: Redis-backed SetStore for the port pool using go-redis
// ABOUTME: Maps the pool's atomic set contract onto SADD/SPOP/SCARD/SETNX

package vpnpool

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// RedisSets implements SetStore on a Redis client. Redis set commands
// are atomic server-side, which is exactly the discipline the pool
// needs; no additional locking is layered on top.
type RedisSets struct {
	client *redis.Client
}

// NewRedisSets creates a SetStore backed by the Redis server at addr.
func NewRedisSets(addr string) *RedisSets {
	return &RedisSets{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

// NewRedisSetsFromClient wraps an existing client, for callers that
// manage connection options themselves.
func NewRedisSetsFromClient(client *redis.Client) *RedisSets {
	return &RedisSets{client: client}
}

func (r *RedisSets) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *RedisSets) SetNX(ctx context.Context, key, value string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *RedisSets) SAdd(ctx context.Context, key string, members ...int) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := r.client.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

func (r *RedisSets) SPop(ctx context.Context, key string) (int, bool, error) {
	val, err := r.client.SPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis spop: %w", err)
	}
	port, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("parsing popped port %q: %w", val, err)
	}
	return port, true, nil
}

func (r *RedisSets) SCard(ctx context.Context, key string) (int, error) {
	n, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard: %w", err)
	}
	return int(n), nil
}

// Close releases the underlying client connection.
func (r *RedisSets) Close() error {
	return r.client.Close()
}
