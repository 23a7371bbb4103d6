package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript atomically consumes from the token and request counters for
// the current window, rolling both back if either budget is exceeded.
var consumeScript = redis.NewScript(`
local tokens = redis.call('INCRBY', KEYS[1], ARGV[1])
if tokens == tonumber(ARGV[1]) then
    redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
local requests = redis.call('INCR', KEYS[2])
if requests == 1 then
    redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
if tokens > tonumber(ARGV[2]) or requests > tonumber(ARGV[4]) then
    redis.call('DECRBY', KEYS[1], ARGV[1])
    redis.call('DECR', KEYS[2])
    return 0
end
return 1
`)

// RedisLimiter is a distributed Limiter using fixed one-minute windows in
// Redis. Multiple processes sharing a key prefix share the budget.
type RedisLimiter struct {
	client            redis.UniversalClient
	keyPrefix         string
	tokensPerMinute   int
	requestsPerMinute int
	window            time.Duration
	opTimeout         time.Duration
}

// Ensure RedisLimiter implements Limiter.
var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a distributed rate limiter. keyPrefix should be
// unique per model, e.g. "ratelimit:flux-kontext-pro".
func NewRedisLimiter(client redis.UniversalClient, keyPrefix string, tokensPerMinute, requestsPerMinute int) *RedisLimiter {
	return &RedisLimiter{
		client:            client,
		keyPrefix:         keyPrefix,
		tokensPerMinute:   tokensPerMinute,
		requestsPerMinute: requestsPerMinute,
		window:            time.Minute,
		opTimeout:         5 * time.Second,
	}
}

func (rl *RedisLimiter) tokensKey() string   { return rl.keyPrefix + ":tokens" }
func (rl *RedisLimiter) requestsKey() string { return rl.keyPrefix + ":requests" }

// TryConsume atomically checks capacity and consumes tokens if available.
// Redis failures count as no capacity; callers see a rate-limit refusal
// rather than an unprotected pass-through.
func (rl *RedisLimiter) TryConsume(numTokens int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), rl.opTimeout)
	defer cancel()

	keys := []string{rl.tokensKey(), rl.requestsKey()}
	argv := []any{numTokens, rl.tokensPerMinute, rl.window.Milliseconds(), rl.requestsPerMinute}

	allowed, err := consumeScript.Run(ctx, rl.client, keys, argv...).Int()
	if err != nil {
		return false
	}
	return allowed == 1
}

// TimeUntilAvailable reports the remaining window time when either budget is
// exhausted, zero otherwise.
func (rl *RedisLimiter) TimeUntilAvailable(tokens int) time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), rl.opTimeout)
	defer cancel()

	usedTokens, err := rl.client.Get(ctx, rl.tokensKey()).Int()
	if err != nil && err != redis.Nil {
		return rl.window
	}
	usedRequests, err := rl.client.Get(ctx, rl.requestsKey()).Int()
	if err != nil && err != redis.Nil {
		return rl.window
	}

	if usedTokens+tokens <= rl.tokensPerMinute && usedRequests < rl.requestsPerMinute {
		return 0
	}

	ttl, err := rl.client.PTTL(ctx, rl.tokensKey()).Result()
	if err != nil || ttl <= 0 {
		return rl.window
	}
	return ttl
}

// WaitAndConsume waits for the current window to roll over until tokens can
// be consumed, bounded by ctx and maxWait.
func (rl *RedisLimiter) WaitAndConsume(ctx context.Context, tokens int, maxWait time.Duration) error {
	deadline := time.Time{}
	if maxWait > 0 {
		deadline = time.Now().Add(maxWait)
	}

	for {
		if rl.TryConsume(tokens) {
			return nil
		}

		wait := rl.TimeUntilAvailable(tokens)
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		if !deadline.IsZero() && time.Now().Add(wait).After(deadline) {
			return fmt.Errorf("rate limit wait time %v exceeds max wait %v", wait, maxWait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
