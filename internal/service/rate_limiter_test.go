package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func newTestMemoryLimiter(start time.Time) (*MemoryRateLimiter, *time.Time) {
	now := start
	rl := NewMemoryRateLimiter()
	rl.now = func() time.Time { return now }
	rl.lastCleanup = start
	return rl, &now
}

func TestMemoryRateLimiter(t *testing.T) {
	ctx := context.Background()
	window := time.Minute

	t.Run("allows requests under limit", func(t *testing.T) {
		rl, _ := newTestMemoryLimiter(time.Unix(1000, 0))

		for i := 0; i < 5; i++ {
			res := rl.Allow(ctx, "1.2.3.4:enqueue", 10, window)
			assert.True(t, res.Allowed)
			assert.Equal(t, 10-i-1, res.Remaining)
		}
	})

	t.Run("denies the N+1th call inside the window", func(t *testing.T) {
		rl, _ := newTestMemoryLimiter(time.Unix(1000, 0))

		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow(ctx, "k", 3, window).Allowed)
		}

		res := rl.Allow(ctx, "k", 3, window)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Equal(t, time.Unix(1000, 0).Add(window), res.ResetAt)
	})

	t.Run("allows the first call after the window elapses", func(t *testing.T) {
		rl, now := newTestMemoryLimiter(time.Unix(1000, 0))

		for i := 0; i < 3; i++ {
			rl.Allow(ctx, "k", 3, window)
		}

		*now = now.Add(window - time.Millisecond)
		assert.False(t, rl.Allow(ctx, "k", 3, window).Allowed)

		*now = now.Add(time.Millisecond)
		res := rl.Allow(ctx, "k", 3, window)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Remaining)
		assert.Equal(t, now.Add(window), res.ResetAt)
	})

	t.Run("tracks identifiers separately", func(t *testing.T) {
		rl, _ := newTestMemoryLimiter(time.Unix(1000, 0))

		rl.Allow(ctx, "a", 1, window)
		assert.False(t, rl.Allow(ctx, "a", 1, window).Allowed)
		assert.True(t, rl.Allow(ctx, "b", 1, window).Allowed)
	})

	t.Run("cleanup removes reset windows", func(t *testing.T) {
		rl, now := newTestMemoryLimiter(time.Unix(1000, 0))

		rl.Allow(ctx, "a", 1, time.Second)
		rl.Allow(ctx, "b", 1, time.Hour)

		*now = now.Add(2 * time.Second)
		assert.Equal(t, 1, rl.Cleanup())
		assert.Len(t, rl.windows, 1)
	})
}

func TestRedisRateLimiter(t *testing.T) {
	ctx := context.Background()
	window := time.Minute
	start := time.Unix(1000, 0)

	newLimiter := func() (*RedisRateLimiter, redismock.ClientMock) {
		db, mock := redismock.NewClientMock()
		rl := NewRedisRateLimiter(db)
		rl.now = func() time.Time { return start }
		return rl, mock
	}

	t.Run("allows while count is within limit", func(t *testing.T) {
		rl, mock := newLimiter()
		mock.ExpectEvalSha(fixedWindowScript.Hash(), []string{"ratelimit:k"}, window.Milliseconds()).
			SetVal([]interface{}{int64(2), int64(45000)})

		res := rl.Allow(ctx, "k", 3, window)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.Remaining)
		assert.Equal(t, start.Add(45*time.Second), res.ResetAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("denies once count exceeds limit", func(t *testing.T) {
		rl, mock := newLimiter()
		mock.ExpectEvalSha(fixedWindowScript.Hash(), []string{"ratelimit:k"}, window.Milliseconds()).
			SetVal([]interface{}{int64(4), int64(10000)})

		res := rl.Allow(ctx, "k", 3, window)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Equal(t, start.Add(10*time.Second), res.ResetAt)
	})

	t.Run("fails open when redis is unreachable", func(t *testing.T) {
		rl, mock := newLimiter()
		mock.ExpectEvalSha(fixedWindowScript.Hash(), []string{"ratelimit:k"}, window.Milliseconds()).
			SetErr(errors.New("dial tcp: connection refused"))

		res := rl.Allow(ctx, "k", 3, window)
		assert.True(t, res.Allowed)
		assert.Equal(t, start.Add(window), res.ResetAt)
	})
}
