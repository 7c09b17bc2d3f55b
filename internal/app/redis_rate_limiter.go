package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed window counter: the first hit in a window sets its expiry.
var checkoutRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimitResult describes one consumed slot of a rate limit window.
type RateLimitResult struct {
	Count             int
	Limit             int
	RetryAfterSeconds int
}

// Exceeded reports whether the call went over the limit.
func (r RateLimitResult) Exceeded() bool {
	return r.Limit > 0 && r.Count > r.Limit
}

// RedisRateLimiter throttles checkout and verification calls per user across
// every replica of the service.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter creates a limiter allowing limit calls per window for
// each scope and subject. A nil client or non-positive limit disables it.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "nutriapp:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  limit,
		window: window,
	}
}

// Consume records one call for subject within scope.
func (r *RedisRateLimiter) Consume(ctx context.Context, scope, subject string) (RateLimitResult, error) {
	if r == nil || r.client == nil || r.limit <= 0 || r.window <= 0 {
		return RateLimitResult{}, nil
	}

	normalizedScope := strings.TrimSpace(scope)
	normalizedSubject := strings.TrimSpace(subject)
	if normalizedScope == "" || normalizedSubject == "" {
		return RateLimitResult{}, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := r.key(normalizedScope, normalizedSubject)
	rawResult, err := checkoutRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return RateLimitResult{}, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return RateLimitResult{}, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}

	currentCount, ok := values[0].(int64)
	if !ok {
		return RateLimitResult{}, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}

	ttlMs, ok := values[1].(int64)
	if !ok {
		return RateLimitResult{Count: int(currentCount), Limit: r.limit}, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}

	return RateLimitResult{Count: int(currentCount), Limit: r.limit, RetryAfterSeconds: retryAfter}, nil
}

func (r *RedisRateLimiter) key(scope, subject string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
}
