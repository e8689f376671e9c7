package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
)

func newRedisLimiter(t *testing.T) (RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRateLimiter(kv.NewRedisStore(client), testLimits()), mr
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newRedisLimiter(t)

	for i := 1; i <= 30; i++ {
		require.True(t, limiter.Allow(ctx, ActionMessage, "user-0001"), "send %d", i)
	}
	assert.False(t, limiter.Allow(ctx, ActionMessage, "user-0001"))

	// другой отправитель и другое действие считаются отдельно
	assert.True(t, limiter.Allow(ctx, ActionMessage, "user-0002"))
	assert.True(t, limiter.Allow(ctx, ActionFile, "user-0001"))

	mr.FastForward(61 * time.Second)

	assert.True(t, limiter.Allow(ctx, ActionMessage, "user-0001"))
}

func TestRateLimiter_FailOpen(t *testing.T) {
	ctx := context.Background()

	limiter := NewRateLimiter(kv.NewDisabledStore(), testLimits())
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow(ctx, ActionMessage, "user-0001"))
	}

	redisLimiter, mr := newRedisLimiter(t)
	mr.Close()
	assert.True(t, redisLimiter.Allow(ctx, ActionRoom, "user-0001"))
}

func TestSend_RateLimitScenario(t *testing.T) {
	limiter, mr := newRedisLimiter(t)
	e := newEnv(t, limiter)

	room := e.createRoom(t, userID(1), 60)
	e.connect(t, "c1", userID(2), room.Code, "Nova")

	for i := 1; i <= 30; i++ {
		_, err := e.send("c1", room.Code, fmt.Sprintf("message %d", i))
		require.NoError(t, err, "send %d", i)
	}

	_, err := e.send("c1", room.Code, "message 31")
	require.ErrorIs(t, err, apperr.ErrRateLimited)
	assert.Equal(t, "too many requests, slow down", apperr.Reason(err))

	mr.FastForward(61 * time.Second)
	e.clock.Advance(61 * time.Second)

	_, err = e.send("c1", room.Code, "message 31")
	assert.NoError(t, err)
}
