// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisFailureWindow keeps failure timestamps in a sorted set per key so
// several service instances share one window.
type RedisFailureWindow struct {
	client *redis.Client
	prefix string
}

// NewRedisFailureWindow creates a window on client.
func NewRedisFailureWindow(client *redis.Client) *RedisFailureWindow {
	return &RedisFailureWindow{client: client, prefix: "breaker:failures"}
}

func (w *RedisFailureWindow) redisKey(key Key) string {
	return fmt.Sprintf("%s:%s", w.prefix, key.String())
}

// Add implements FailureWindow with a sliding-window pipeline.
func (w *RedisFailureWindow) Add(ctx context.Context, key Key, at time.Time, window time.Duration) (int, error) {
	rk := w.redisKey(key)
	minScore := at.Add(-window).UnixMilli()

	pipe := w.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rk, "-inf", fmt.Sprintf("%d", minScore))
	pipe.ZAdd(ctx, rk, &redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: fmt.Sprintf("%d:%s", at.UnixNano(), uuid.NewString()),
	})
	card := pipe.ZCard(ctx, rk)
	pipe.Expire(ctx, rk, 2*window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record failure for %s: %w", key, err)
	}
	return int(card.Val()), nil
}

// Clear implements FailureWindow.
func (w *RedisFailureWindow) Clear(ctx context.Context, key Key) error {
	if err := w.client.Del(ctx, w.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to clear failures for %s: %w", key, err)
	}
	return nil
}
