// redis_ratelimit.go - Redis-backed sliding-window rate counting.
package server

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRate counts requests in a Redis sorted set per key, scored by
// unix nanoseconds, so concurrent service instances enforce one shared
// budget. Redis being down fails open: rate limiting is protection,
// not a correctness requirement, and must never take uploads down
// with it.
type redisRate struct {
	client *redis.Client
}

// NewRedisRate connects to Redis and verifies the connection.
func NewRedisRate(redisURL string) (*redisRate, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &redisRate{client: client}, nil
}

func (rr *redisRate) allow(ctx context.Context, key string, rule rateRule) bool {
	now := time.Now()
	redisKey := "ratelimit:" + key
	minScore := strconv.FormatInt(now.Add(-rule.window).UnixNano(), 10)

	pipe := rr.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", minScore)
	count := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		Warn("rate_limit_redis_unavailable", map[string]any{"key": rule.name})
		return true
	}

	if count.Val() >= int64(rule.limit) {
		return false
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	pipe = rr.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, redisKey, rule.window)
	if _, err := pipe.Exec(ctx); err != nil {
		Warn("rate_limit_redis_unavailable", map[string]any{"key": rule.name})
	}
	return true
}

// Close releases the Redis connection.
func (rr *redisRate) Close() error {
	return rr.client.Close()
}
