package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) Store {
	return &redisStore{client: client}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %w", ErrUnavailable, op, err)
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return val, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

func (s *redisStore) ZAdd(ctx context.Context, set string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, set, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return unavailable("zadd", err)
	}
	return nil
}

func (s *redisStore) ZScore(ctx context.Context, set, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, set, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("zscore", err)
	}
	return score, true, nil
}

func (s *redisStore) ZRange(ctx context.Context, set string, start, stop int64) ([]Member, error) {
	zs, err := s.client.ZRangeWithScores(ctx, set, start, stop).Result()
	if err != nil {
		return nil, unavailable("zrange", err)
	}

	members := make([]Member, 0, len(zs))
	for _, z := range zs {
		name, ok := z.Member.(string)
		if !ok {
			name = fmt.Sprint(z.Member)
		}
		members = append(members, Member{Member: name, Score: z.Score})
	}
	return members, nil
}

func (s *redisStore) ZCard(ctx context.Context, set string) (int64, error) {
	n, err := s.client.ZCard(ctx, set).Result()
	if err != nil {
		return 0, unavailable("zcard", err)
	}
	return n, nil
}

func (s *redisStore) ZRem(ctx context.Context, set string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.client.ZRem(ctx, set, args...).Result()
	if err != nil {
		return 0, unavailable("zrem", err)
	}
	return n, nil
}

func (s *redisStore) ZRemRangeByScore(ctx context.Context, set string, min, max float64) (int64, error) {
	n, err := s.client.ZRemRangeByScore(ctx, set, formatScore(min), formatScore(max)).Result()
	if err != nil {
		return 0, unavailable("zremrangebyscore", err)
	}
	return n, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func formatScore(v float64) string {
	switch {
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsInf(v, 1):
		return "+inf"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}
