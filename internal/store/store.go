// Package store abstracts the key-value backend shared by the queue, the
// signaling relay and the grace window.
//
// Two implementations exist: a Redis store for deployments with REDIS_URL set,
// and an in-process memory store for local or disconnected operation. The
// memory store is single-instance only and must not back a horizontally
// scaled deployment.
package store

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrUnavailable marks failures of the backing store. Callers map it to a
// server error and never treat it as an empty result.
var ErrUnavailable = errors.New("store unavailable")

// Member is one entry of an ordered set.
type Member struct {
	Member string
	Score  float64
}

type Store interface {
	// Get returns the value and true, or false when the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes the value. A ttl of zero keeps the key until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	ZAdd(ctx context.Context, set string, score float64, member string) error
	ZScore(ctx context.Context, set, member string) (float64, bool, error)
	// ZRange returns members ordered by ascending score, ties by member.
	// Indexes follow Redis semantics, so -1 is the last member.
	ZRange(ctx context.Context, set string, start, stop int64) ([]Member, error)
	ZCard(ctx context.Context, set string) (int64, error)
	// ZRem returns how many of the members were present and removed. A zero
	// result means another caller removed them first.
	ZRem(ctx context.Context, set string, members ...string) (int64, error)
	ZRemRangeByScore(ctx context.Context, set string, min, max float64) (int64, error)

	Ping(ctx context.Context) error
}

// Cleaner is implemented by stores that expire keys lazily and need a
// periodic purge.
type Cleaner interface {
	Cleanup() int
}

// New returns the Redis store when client is non-nil and the memory store otherwise.
func New(client *goredis.Client) Store {
	if client == nil {
		log.Warn().Msg("REDIS_URL not configured: using in-memory store (single instance only)")
		return NewMemory()
	}
	return NewRedis(client)
}
