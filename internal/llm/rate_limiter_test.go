package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedisAddr = "localhost:6379"

// limiterOrSkip connects to the test Redis, skipping when no server is
// listening (the Reserve/Wait tests are integration tests).
func limiterOrSkip(t *testing.T, limits Limits) *RateLimiter {
	t.Helper()
	rl, err := NewRateLimiterWithLimits(testRedisAddr, limits)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	t.Cleanup(func() {
		cleanupWindows(t, rl)
		rl.Close()
	})
	cleanupWindows(t, rl)
	return rl
}

func cleanupWindows(t *testing.T, rl *RateLimiter) {
	t.Helper()
	ctx := context.Background()
	keys, err := rl.redis.Keys(ctx, "embed:window:*").Result()
	if err != nil || len(keys) == 0 {
		return
	}
	if err := rl.redis.Del(ctx, keys...).Err(); err != nil {
		t.Logf("failed to clean windows: %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(0), EstimateTokens(nil))
	assert.Equal(t, int64(24), EstimateTokens([]string{"0123456789", make90()}))
	// Tiny texts still cost at least one token each.
	assert.Equal(t, int64(2), EstimateTokens([]string{"a", "b"}))
}

func make90() string {
	out := ""
	for i := 0; i < 9; i++ {
		out += "0123456789"
	}
	return out
}

func TestThrottleErrorMessage(t *testing.T) {
	err := &ThrottleError{RetryAfter: 42 * time.Second}
	assert.Contains(t, err.Error(), "42s")
}

func TestWindowRemainingFloorsAtOneSecond(t *testing.T) {
	boundary := time.Date(2026, 8, 1, 12, 0, 59, int(900*time.Millisecond), time.UTC)
	assert.Equal(t, time.Second, windowRemaining(boundary))

	early := time.Date(2026, 8, 1, 12, 0, 10, 0, time.UTC)
	assert.Equal(t, 50*time.Second, windowRemaining(early))
}

func TestReserveWithinLimits(t *testing.T) {
	rl := limiterOrSkip(t, Limits{BatchesPerMinute: 10, TokensPerMinute: 1000})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Reserve(ctx, 100))
	}

	batches, tokens, err := rl.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), batches)
	assert.Equal(t, int64(500), tokens)
}

func TestReserveThrottlesOnBatchQuota(t *testing.T) {
	rl := limiterOrSkip(t, Limits{BatchesPerMinute: 2, TokensPerMinute: 1_000_000})
	ctx := context.Background()

	require.NoError(t, rl.Reserve(ctx, 10))
	require.NoError(t, rl.Reserve(ctx, 10))

	err := rl.Reserve(ctx, 10)
	var throttle *ThrottleError
	require.ErrorAs(t, err, &throttle)
	assert.Greater(t, throttle.RetryAfter, time.Duration(0))

	// The rejected reservation must not consume quota.
	batches, _, err := rl.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), batches)
}

func TestReserveThrottlesOnTokenQuota(t *testing.T) {
	rl := limiterOrSkip(t, Limits{BatchesPerMinute: 100, TokensPerMinute: 150})
	ctx := context.Background()

	require.NoError(t, rl.Reserve(ctx, 100))

	err := rl.Reserve(ctx, 100)
	var throttle *ThrottleError
	require.ErrorAs(t, err, &throttle)

	// A smaller batch that fits the remainder still goes through.
	require.NoError(t, rl.Reserve(ctx, 50))
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	rl := limiterOrSkip(t, Limits{BatchesPerMinute: 1, TokensPerMinute: 1_000_000})

	require.NoError(t, rl.Reserve(context.Background(), 10))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentReservationsStayWithinQuota(t *testing.T) {
	const quota = 20
	rl := limiterOrSkip(t, Limits{BatchesPerMinute: quota, TokensPerMinute: 1_000_000})
	ctx := context.Background()

	results := make(chan error, 50)
	for i := 0; i < 50; i++ {
		go func() {
			results <- rl.Reserve(ctx, 10)
		}()
	}

	granted := 0
	for i := 0; i < 50; i++ {
		if err := <-results; err == nil {
			granted++
		}
	}
	assert.Equal(t, quota, granted, fmt.Sprintf("exactly %d reservations should fit", quota))
}

func TestNewRateLimiterInvalidAddress(t *testing.T) {
	_, err := NewRateLimiter("localhost:1")
	assert.Error(t, err)
}
