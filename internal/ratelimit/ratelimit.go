package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/adminauth/internal/metrics"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	// Window is the period over which requests are counted.
	Window() time.Duration
	Close() error
}

// slidingWindow trims entries older than the window, then admits the request
// if fewer than limit remain. Members carry a sequence suffix so two requests
// in the same nanosecond are both counted.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('EXPIRE', key, ttl)
		return 1
	end
	return 0
`)

type RedisRateLimiter struct {
	client redis.UniversalClient
	name   string
	limit  int64
	window time.Duration
	now    func() time.Time
	seq    atomic.Uint64
}

// NewRedisRateLimiter connects to redisURL and limits each key to limit
// requests per window. name prefixes the keys and labels the metrics.
func NewRedisRateLimiter(redisURL, name string, limit int, window time.Duration) (*RedisRateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewWithClient(client, name, limit, window), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, name string, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		name:   name,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

func (r *RedisRateLimiter) WithClock(now func() time.Time) *RedisRateLimiter {
	r.now = now
	return r
}

// Allow implements sliding window rate limiting using Redis
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	ttl := int64(r.window/time.Second) + 1
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(r.seq.Add(1), 10)

	result, err := slidingWindow.Run(ctx, r.client,
		[]string{"ratelimit:" + r.name + ":" + key},
		now, windowStart, r.limit, ttl, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowed := result == 1
	if !allowed {
		metrics.RateLimitHits.WithLabelValues(r.name).Inc()
	}
	return allowed, nil
}

func (r *RedisRateLimiter) Window() time.Duration {
	return r.window
}

func (r *RedisRateLimiter) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// NoOpRateLimiter always allows requests (for testing or disabled rate limiting)
type NoOpRateLimiter struct{}

func (n *NoOpRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (n *NoOpRateLimiter) Window() time.Duration {
	return 0
}

func (n *NoOpRateLimiter) Close() error {
	return nil
}
