package app

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRateLimiter_DisabledWithoutClient(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "", 5, time.Minute)

	result, err := limiter.Consume(context.Background(), "checkout", "user-1")
	require.NoError(t, err)
	assert.False(t, result.Exceeded())
	assert.Equal(t, "nutriapp:rate_limit:checkout:user-1", limiter.key("checkout", "user-1"))
}

func TestRedisRateLimiter_KeyTrimsPrefix(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, " custom:limits: ", 5, time.Minute)
	assert.Equal(t, "custom:limits:verify:user-2", limiter.key("verify", "user-2"))
}

func TestRedisRateLimiter_BlankSubjectIsNotCounted(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	limiter := NewRedisRateLimiter(client, "", 5, time.Minute)

	result, err := limiter.Consume(context.Background(), "checkout", "  ")
	require.NoError(t, err)
	assert.Equal(t, RateLimitResult{}, result)
}

func TestRedisRateLimiter_UnreachableRedisReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	limiter := NewRedisRateLimiter(client, "", 5, time.Minute)

	_, err := limiter.Consume(context.Background(), "checkout", "user-1")
	assert.Error(t, err)
}

func TestRateLimitResult_Exceeded(t *testing.T) {
	assert.False(t, RateLimitResult{Count: 5, Limit: 5}.Exceeded())
	assert.True(t, RateLimitResult{Count: 6, Limit: 5}.Exceeded())
	assert.False(t, RateLimitResult{Count: 6}.Exceeded())
}
