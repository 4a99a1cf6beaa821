package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The embedding pipeline calls the provider in batches (embedding.Engine
// slices symbol nodes into batchSize texts per request). RateLimiter
// meters those batches against the provider's per-minute quotas using
// Redis, so every server process sharing one API key draws from the same
// budget. Windows are keyed by unix minute; a reservation either fits the
// current window or reports how long until the next one opens.
type Limits struct {
	BatchesPerMinute int64 // provider requests per minute
	TokensPerMinute  int64 // input tokens per minute, summed over batches
}

// DefaultLimits is sized a notch under OpenAI's text-embedding tier-1
// quota so a concurrent build never trips the provider's own limiter.
var DefaultLimits = Limits{
	BatchesPerMinute: 900,
	TokensPerMinute:  900_000,
}

// RateLimiter reserves embedding-batch capacity in Redis.
type RateLimiter struct {
	redis  *redis.Client
	limits Limits
}

// reserveScript atomically adds one batch and its tokens to the current
// minute window, rolling back and reporting seconds-until-reset when
// either quota would be exceeded. Keys expire two minutes after creation
// so abandoned windows clean themselves up.
var reserveScript = redis.NewScript(`
	local batches = redis.call('INCR', KEYS[1])
	local tokens = redis.call('INCRBY', KEYS[2], ARGV[3])
	if batches == 1 then redis.call('EXPIRE', KEYS[1], 120) end
	if tokens == tonumber(ARGV[3]) then redis.call('EXPIRE', KEYS[2], 120) end
	if batches > tonumber(ARGV[1]) or tokens > tonumber(ARGV[2]) then
		redis.call('DECR', KEYS[1])
		redis.call('DECRBY', KEYS[2], ARGV[3])
		return 0
	end
	return 1
`)

// NewRateLimiter connects to Redis at addr with DefaultLimits.
func NewRateLimiter(addr string) (*RateLimiter, error) {
	return NewRateLimiterWithLimits(addr, DefaultLimits)
}

// NewRateLimiterWithLimits connects with explicit limits.
func NewRateLimiterWithLimits(addr string, limits Limits) (*RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis at %s: %w", addr, err)
	}

	if limits.BatchesPerMinute <= 0 {
		limits.BatchesPerMinute = DefaultLimits.BatchesPerMinute
	}
	if limits.TokensPerMinute <= 0 {
		limits.TokensPerMinute = DefaultLimits.TokensPerMinute
	}
	return &RateLimiter{redis: client, limits: limits}, nil
}

// ThrottleError reports a reservation that did not fit the current minute
// window.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("embedding quota exhausted for this minute, retry in %s", e.RetryAfter.Round(time.Second))
}

// Reserve claims one batch of tokens tokens from the current window.
// Returns a *ThrottleError when the window is full; any other error means
// Redis itself failed.
func (r *RateLimiter) Reserve(ctx context.Context, tokens int64) error {
	now := time.Now()
	window := now.Unix() / 60
	batchKey := fmt.Sprintf("embed:window:%d:batches", window)
	tokenKey := fmt.Sprintf("embed:window:%d:tokens", window)

	ok, err := reserveScript.Run(ctx, r.redis,
		[]string{batchKey, tokenKey},
		r.limits.BatchesPerMinute, r.limits.TokensPerMinute, tokens).Int64()
	if err != nil {
		return fmt.Errorf("reserving embedding capacity: %w", err)
	}
	if ok == 1 {
		return nil
	}
	return &ThrottleError{RetryAfter: windowRemaining(now)}
}

// Wait blocks until a reservation succeeds or ctx is done. Build workers
// call this before each provider batch; a full window just delays the
// build rather than failing it.
func (r *RateLimiter) Wait(ctx context.Context, tokens int64) error {
	for {
		err := r.Reserve(ctx, tokens)
		if err == nil {
			return nil
		}
		throttle, ok := err.(*ThrottleError)
		if !ok {
			return err
		}
		select {
		case <-time.After(throttle.RetryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Usage reports the current window's consumption, for the health surface.
func (r *RateLimiter) Usage(ctx context.Context) (batches, tokens int64, err error) {
	window := time.Now().Unix() / 60
	pipe := r.redis.Pipeline()
	batchCmd := pipe.Get(ctx, fmt.Sprintf("embed:window:%d:batches", window))
	tokenCmd := pipe.Get(ctx, fmt.Sprintf("embed:window:%d:tokens", window))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("reading embedding usage: %w", err)
	}
	batches, _ = batchCmd.Int64()
	tokens, _ = tokenCmd.Int64()
	return batches, tokens, nil
}

// Close releases the Redis connection.
func (r *RateLimiter) Close() error {
	if r.redis != nil {
		return r.redis.Close()
	}
	return nil
}

// windowRemaining is the time until the next minute window opens, floored
// at one second so a caller never busy-loops on a window boundary.
func windowRemaining(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	d := next.Sub(now)
	if d < time.Second {
		d = time.Second
	}
	return d
}

// EstimateTokens approximates the provider-side token count of a batch of
// texts. Four bytes per token overestimates for code slightly, which is
// the safe direction for quota math.
func EstimateTokens(texts []string) int64 {
	var total int64
	for _, t := range texts {
		total += int64(len(t)) / 4
	}
	if total == 0 && len(texts) > 0 {
		total = int64(len(texts))
	}
	return total
}
