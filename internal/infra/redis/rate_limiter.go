package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-results-bot/internal/usecase"
)

// RateLimiter is a fixed-window counter over Redis. The window key is set to
// expire on the first increment, so a burst of concurrent increments still
// shares one window.
type RateLimiter struct {
	client RedisClient
	window time.Duration
	log    *zerolog.Logger
}

var _ usecase.RateLimiter = (*RateLimiter)(nil)

func NewRateLimiter(client RedisClient, window time.Duration, logger *zerolog.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, window: window, log: logger}
}

// Allow admits the request when the post-increment count is within max. Redis
// failures fail open: blocking every user because the counter store is down
// would be worse than briefly losing the limit.
func (r *RateLimiter) Allow(ctx context.Context, userID int64, max int) bool {
	key := searchKey(userID)

	count, err := r.client.Incr(ctx, key)
	if err != nil {
		r.log.Warn().Err(err).Int64("tg_id", userID).Msg("rate limiter unavailable, allowing request")
		return true
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("failed to set rate limit window")
		}
	}
	return count <= int64(max)
}

func searchKey(userID int64) string {
	return fmt.Sprintf("rate_limit:search:%d", userID)
}
