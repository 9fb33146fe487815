package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOrderLocker serializes reconciliation runs per order with a redis
// SET NX lock. Without it two concurrent triggers for the same order can both
// pass the duplicate guard and create a duplicate payment.
type RedisOrderLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisOrderLocker(client *redis.Client) *RedisOrderLocker {
	return &RedisOrderLocker{
		client: client,
		ttl:    60 * time.Second,
	}
}

func (l *RedisOrderLocker) Acquire(ctx context.Context, orderID int64) (func(), bool, error) {
	key := fmt.Sprintf("reconcile:lock:%d", orderID)

	acquired, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock failed: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		_ = l.client.Del(context.Background(), key).Err()
	}
	return release, true, nil
}
