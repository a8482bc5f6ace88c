package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain"
	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/infra/metrics"
)

const resultCacheName = "exam_result"

// ResultCache keeps external result lookups warm so repeated searches for the
// same exam number do not hammer the upstream API on results day.
type ResultCache struct {
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewResultCache(client RedisClient, ttl time.Duration, logger *zerolog.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultCache{client: client, ttl: ttl, log: logger}
}

// Get returns the cached result or domain.ErrNotFound on a miss. Redis errors
// are reported as misses so the caller falls through to the API.
func (c *ResultCache) Get(ctx context.Context, examNo string) (*model.ExamResult, error) {
	raw, err := c.client.Get(ctx, resultKey(examNo))
	if err != nil {
		if !IsNil(err) {
			c.log.Warn().Err(err).Str("examno", examNo).Msg("result cache read failed")
		}
		metrics.IncCacheRequest(resultCacheName, "miss")
		return nil, domain.ErrNotFound
	}

	var result model.ExamResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.log.Warn().Err(err).Str("examno", examNo).Msg("corrupt cached result, dropping")
		_ = c.client.Del(ctx, resultKey(examNo))
		metrics.IncCacheRequest(resultCacheName, "miss")
		return nil, domain.ErrNotFound
	}
	metrics.IncCacheRequest(resultCacheName, "hit")
	return &result, nil
}

// Set stores the result for the configured TTL. Failures are logged only; the
// cache is best effort.
func (c *ResultCache) Set(ctx context.Context, result *model.ExamResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.log.Warn().Err(err).Str("examno", result.ExamNo).Msg("failed to encode result for cache")
		return
	}
	if err := c.client.Set(ctx, resultKey(result.ExamNo), raw, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("examno", result.ExamNo).Msg("result cache write failed")
	}
}

func resultKey(examNo string) string {
	return fmt.Sprintf("result:%s", examNo)
}
