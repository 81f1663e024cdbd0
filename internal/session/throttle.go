package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisThrottle caps password-reset requests per email address using a
// counter with a rolling expiry. Redis being down never blocks resets: the
// throttle fails open.
type RedisThrottle struct {
	client *redis.Client
	logger *slog.Logger
	limit  int64
	window time.Duration
}

// NewRedisThrottle constructs a throttle allowing limit requests per window.
func NewRedisThrottle(client *redis.Client, logger *slog.Logger, limit int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{
		client: client,
		logger: logger,
		limit:  int64(limit),
		window: window,
	}
}

// Allow reports whether another reset request for the email may proceed.
func (t *RedisThrottle) Allow(ctx context.Context, email string) bool {
	key := "authd:reset-throttle:" + strings.ToLower(email)

	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		t.logger.Warn("reset throttle unavailable", slog.Any("error", err))
		return true
	}
	if count == 1 {
		if err := t.client.Expire(ctx, key, t.window).Err(); err != nil {
			t.logger.Warn("reset throttle expire", slog.Any("error", err))
		}
	}
	return count <= t.limit
}

var _ ResetThrottle = (*RedisThrottle)(nil)
