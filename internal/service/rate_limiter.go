package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	maxLimiterEntries      = 50000
	limiterCleanupInterval = time.Minute
)

// RateLimitResult is the outcome of one Allow call.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts events per key in fixed windows. The window opens on the
// first event for a key; once limit events were counted the key is denied
// until ResetAt.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimiter is the process-local limiter. Counters are lost on
// restart.
type MemoryRateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*fixedWindow
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows:     make(map[string]*fixedWindow),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (rl *MemoryRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) >= limiterCleanupInterval || len(rl.windows) > maxLimiterEntries {
		rl.cleanupLocked(now)
	}

	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		rl.windows[key] = w
	}

	if w.count >= limit {
		return RateLimitResult{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}

	w.count++
	return RateLimitResult{Allowed: true, Remaining: limit - w.count, ResetAt: w.resetAt}
}

// Cleanup drops windows that already reset and returns how many were removed.
func (rl *MemoryRateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.cleanupLocked(rl.now())
}

func (rl *MemoryRateLimiter) cleanupLocked(now time.Time) int {
	rl.lastCleanup = now

	removed := 0
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
			removed++
		}
	}

	if len(rl.windows) > maxLimiterEntries {
		excess := len(rl.windows) - maxLimiterEntries
		for key := range rl.windows {
			if excess == 0 {
				break
			}
			delete(rl.windows, key)
			excess--
			removed++
		}
	}
	return removed
}

// fixedWindowScript increments the counter and arms the expiry on the first
// hit. It returns the count and the remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])

local count = redis.call('INCR', key)
if count == 1 then
    redis.call('PEXPIRE', key, window)
end

local ttl = redis.call('PTTL', key)
if ttl < 0 then
    redis.call('PEXPIRE', key, window)
    ttl = window
end

return {count, ttl}
`)

// RedisRateLimiter shares windows between instances.
type RedisRateLimiter struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.Scripter) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult {
	now := rl.now()
	fullKey := fmt.Sprintf("ratelimit:%s", key)

	result, err := fixedWindowScript.Run(ctx, rl.client, []string{fullKey}, window.Milliseconds()).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis rate limit check failed, allowing request")
		return RateLimitResult{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}
	}

	if len(result) != 2 {
		log.Warn().Str("key", key).Msg("unexpected redis rate limit result, allowing request")
		return RateLimitResult{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}
	}

	count, ttl := int(result[0]), time.Duration(result[1])*time.Millisecond
	resetAt := now.Add(ttl)
	if count > limit {
		return RateLimitResult{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	return RateLimitResult{Allowed: true, Remaining: limit - count, ResetAt: resetAt}
}
