// Package ratelimit holds the Redis-backed per-user action limits and
// idempotency keys. Without Redis both checks always pass.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
)

var client *redis.Client

// Init connects to Redis. An empty addr leaves limiting disabled.
func Init(ctx context.Context, addr, password string) error {
	if addr == "" {
		logs.LogJSON("INFO", "Redis not configured, rate limits disabled", nil)
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	client = rdb
	return nil
}

// SetClient replaces the Redis client; nil disables limiting.
func SetClient(rdb *redis.Client) {
	client = rdb
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// Allow counts one hit for key inside a fixed window and reports whether
// the count is still within limit.
func Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	if client == nil || limit <= 0 {
		return true, 0, nil
	}

	// The window starts with the first hit; SET NX and INCR run in one
	// MULTI so the counter never exists without its TTL.
	k := "rl:" + key
	pipe := client.TxPipeline()
	pipe.SetNX(ctx, k, 0, window)
	incr := pipe.Incr(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	n := incr.Val()
	if n > limit {
		// A counter written without an expiry would block forever.
		if ttl, err := client.TTL(ctx, k).Result(); err == nil && ttl < 0 {
			_ = client.Expire(ctx, k, window).Err()
		}
	}
	return n <= limit, n, nil
}

// Check is Allow for service code: it fails open when Redis errors and
// returns RATE_LIMITED once the limit is exceeded.
func Check(ctx context.Context, action, userID string, limit int64, window time.Duration) error {
	ok, n, err := Allow(ctx, action+":"+userID, limit, window)
	if err != nil {
		logs.LogJSON("WARN", "Rate limiter unavailable", map[string]interface{}{
			"action": action,
			"userID": userID,
			"error":  err.Error(),
		})
		return nil
	}
	if !ok {
		return apperr.New(apperr.CodeRateLimited, "too many requests, please slow down").
			WithContext(map[string]interface{}{"action": action, "count": n, "limit": limit})
	}
	return nil
}

// PutNX records key once. It returns false when the key was already seen.
func PutNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if client == nil {
		return true, nil
	}
	return client.SetNX(ctx, "idem:"+key, "1", ttl).Result()
}

// Forget removes an idempotency key so a failed operation can be retried.
func Forget(ctx context.Context, key string) error {
	if client == nil {
		return nil
	}
	return client.Del(ctx, "idem:"+key).Err()
}
