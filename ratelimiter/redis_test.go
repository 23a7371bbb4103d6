package ratelimiter

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLimiter(t *testing.T, tokensPerMinute, requestsPerMinute int) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLimiter(client, "ratelimit:test-model", tokensPerMinute, requestsPerMinute), mr
}

func TestRedisLimiter_TryConsume(t *testing.T) {
	rl, _ := newTestRedisLimiter(t, 100, 10)

	assert.True(t, rl.TryConsume(60))
	assert.True(t, rl.TryConsume(40))

	// Token budget exhausted
	assert.False(t, rl.TryConsume(1))
}

func TestRedisLimiter_RequestBudget(t *testing.T) {
	rl, _ := newTestRedisLimiter(t, 1000, 2)

	assert.True(t, rl.TryConsume(1))
	assert.True(t, rl.TryConsume(1))

	// Request budget exhausted even though tokens remain
	assert.False(t, rl.TryConsume(1))
}

func TestRedisLimiter_RollbackOnRefusal(t *testing.T) {
	rl, _ := newTestRedisLimiter(t, 100, 10)

	require.True(t, rl.TryConsume(90))

	// Refused consume must not leak tokens from the window
	require.False(t, rl.TryConsume(20))
	assert.True(t, rl.TryConsume(10))
}

func TestRedisLimiter_WindowRollover(t *testing.T) {
	rl, mr := newTestRedisLimiter(t, 10, 10)

	require.True(t, rl.TryConsume(10))
	require.False(t, rl.TryConsume(1))

	mr.FastForward(time.Minute + time.Second)

	assert.True(t, rl.TryConsume(10), "budget should reset after the window expires")
}

func TestRedisLimiter_TimeUntilAvailable(t *testing.T) {
	rl, _ := newTestRedisLimiter(t, 100, 10)

	assert.Zero(t, rl.TimeUntilAvailable(50))

	require.True(t, rl.TryConsume(100))
	assert.Positive(t, rl.TimeUntilAvailable(1))
}

func TestRedisLimiter_SharedBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a := NewRedisLimiter(client, "ratelimit:shared", 10, 10)
	b := NewRedisLimiter(client, "ratelimit:shared", 10, 10)

	require.True(t, a.TryConsume(6))

	// Second instance sees the same window
	assert.False(t, b.TryConsume(6))
	assert.True(t, b.TryConsume(4))
}
