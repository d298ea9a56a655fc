package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSequence_Next(t *testing.T) {
	ctx := context.Background()

	t.Run("increments from seed", func(t *testing.T) {
		seq := NewRedisSequence(NewMemoryCache(), "")
		require.NoError(t, seq.Init(ctx, 1_000_000))

		id, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000_001), id)
		assert.Equal(t, uint64(1_000_001), seq.Current())
	})

	t.Run("init keeps an existing counter", func(t *testing.T) {
		mem := NewMemoryCache()
		seq := NewRedisSequence(mem, "seq")
		require.NoError(t, seq.Init(ctx, 10))
		_, err := seq.Next(ctx)
		require.NoError(t, err)

		other := NewRedisSequence(mem, "seq")
		require.NoError(t, other.Init(ctx, 0))
		id, err := other.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(12), id)
	})

	t.Run("shared counter never repeats", func(t *testing.T) {
		mem := NewMemoryCache()
		a := NewRedisSequence(mem, "shared")
		b := NewRedisSequence(mem, "shared")

		var wg sync.WaitGroup
		var mu sync.Mutex
		seen := make(map[uint64]bool)
		for _, seq := range []*RedisSequence{a, b} {
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(seq *RedisSequence) {
					defer wg.Done()
					for j := 0; j < 100; j++ {
						id, err := seq.Next(ctx)
						if err != nil {
							continue
						}
						mu.Lock()
						assert.False(t, seen[id], "duplicate id %d", id)
						seen[id] = true
						mu.Unlock()
					}
				}(seq)
			}
		}
		wg.Wait()

		assert.Len(t, seen, 2000)
	})

	t.Run("cache failure", func(t *testing.T) {
		seq := NewRedisSequence(&failingCache{err: errors.New("down")}, "")
		_, err := seq.Next(ctx)
		assert.Error(t, err)
		assert.Error(t, seq.Init(ctx, 1))
	})
}
