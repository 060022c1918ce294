package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

type memoryValue struct {
	value     string
	expiresAt time.Time
}

func (v memoryValue) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && !now.Before(v.expiresAt)
}

// MemoryStore keeps everything in process. Keys expire lazily on read and
// during Cleanup.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memoryValue
	sets   map[string]map[string]float64
	now    func() time.Time
}

func NewMemory() *MemoryStore {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns a memory store that reads time from now.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		values: make(map[string]memoryValue),
		sets:   make(map[string]map[string]float64),
		now:    now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	if v.expired(s.now()) {
		delete(s.values, key)
		return "", false, nil
	}
	return v.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := memoryValue{value: value}
	if ttl > 0 {
		v.expiresAt = s.now().Add(ttl)
	}
	s.values[key] = v
	return nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.values, key)
		delete(s.sets, key)
	}
	return nil
}

func (s *MemoryStore) ZAdd(ctx context.Context, set string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.sets[set]
	if !ok {
		members = make(map[string]float64)
		s.sets[set] = members
	}
	members[member] = score
	return nil
}

func (s *MemoryStore) ZScore(ctx context.Context, set, member string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.sets[set][member]
	return score, ok, nil
}

func (s *MemoryStore) ZRange(ctx context.Context, set string, start, stop int64) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := s.sortedLocked(set)
	n := int64(len(sorted))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []Member{}, nil
	}

	out := make([]Member, stop-start+1)
	copy(out, sorted[start:stop+1])
	return out, nil
}

func (s *MemoryStore) ZCard(ctx context.Context, set string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.sets[set])), nil
}

func (s *MemoryStore) ZRem(ctx context.Context, set string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sets[set]
	if !ok {
		return 0, nil
	}

	var removed int64
	for _, m := range members {
		if _, exists := current[m]; exists {
			delete(current, m)
			removed++
		}
	}
	if len(current) == 0 {
		delete(s.sets, set)
	}
	return removed, nil
}

func (s *MemoryStore) ZRemRangeByScore(ctx context.Context, set string, min, max float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sets[set]
	if !ok {
		return 0, nil
	}

	var removed int64
	for m, score := range current {
		if score >= min && score <= max {
			delete(current, m)
			removed++
		}
	}
	if len(current) == 0 {
		delete(s.sets, set)
	}
	return removed, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Cleanup drops expired values and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, v := range s.values {
		if v.expired(now) {
			delete(s.values, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) sortedLocked(set string) []Member {
	current := s.sets[set]
	out := make([]Member, 0, len(current))
	for m, score := range current {
		out = append(out, Member{Member: m, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

var _ Store = (*MemoryStore)(nil)
var _ Cleaner = (*MemoryStore)(nil)

// NegInf and PosInf are open bounds for ZRemRangeByScore.
var (
	NegInf = math.Inf(-1)
	PosInf = math.Inf(1)
)
