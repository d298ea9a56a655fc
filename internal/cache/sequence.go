package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
)

// DefaultSequenceKey is the counter key used by RedisSequence.
const DefaultSequenceKey = "shortcode:seq"

// RedisSequence hands out IDs from an INCR counter so several processes can
// share one sequence.
type RedisSequence struct {
	cache Cache
	key   string
	last  atomic.Uint64
}

// NewRedisSequence creates a sequence backed by key.
func NewRedisSequence(cache Cache, key string) *RedisSequence {
	if key == "" {
		key = DefaultSequenceKey
	}
	return &RedisSequence{cache: cache, key: key}
}

// Init seeds the counter with start if it does not exist yet, so the first
// Next returns start+1. Existing counters are left alone.
func (s *RedisSequence) Init(ctx context.Context, start uint64) error {
	if _, err := s.cache.SetNX(ctx, s.key, []byte(strconv.FormatUint(start, 10)), 0); err != nil {
		return fmt.Errorf("failed to seed sequence %s: %w", s.key, err)
	}
	return nil
}

// Next increments the counter.
func (s *RedisSequence) Next(ctx context.Context) (uint64, error) {
	n, err := s.cache.Incr(ctx, s.key)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", s.key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("sequence %s is negative: %d", s.key, n)
	}
	v := uint64(n)
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			break
		}
	}
	return v, nil
}

// Current returns the last ID this process received.
func (s *RedisSequence) Current() uint64 {
	return s.last.Load()
}
