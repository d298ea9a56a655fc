package idgen

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicSequence(t *testing.T) {
	t.Run("starts in the randomized range", func(t *testing.T) {
		seq := NewAtomicSequence()
		id, err := seq.Next(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, id, uint64(sequenceStartMin))
		assert.Less(t, id, uint64(sequenceStartMax))
	})

	t.Run("increments by one", func(t *testing.T) {
		seq := NewAtomicSequenceFrom(100)
		ctx := context.Background()

		first, err := seq.Next(ctx)
		require.NoError(t, err)
		second, err := seq.Next(ctx)
		require.NoError(t, err)

		assert.Equal(t, uint64(100), first)
		assert.Equal(t, uint64(101), second)
		assert.Equal(t, uint64(101), seq.Current())
	})

	t.Run("respects cancelled context", func(t *testing.T) {
		seq := NewAtomicSequenceFrom(1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := seq.Next(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no duplicates under concurrent writers", func(t *testing.T) {
		seq := NewAtomicSequenceFrom(0)
		ctx := context.Background()
		numGoroutines := 64
		perGoroutine := 500

		var wg sync.WaitGroup
		results := make(chan uint64, numGoroutines*perGoroutine)
		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perGoroutine; j++ {
					id, err := seq.Next(ctx)
					if err == nil {
						results <- id
					}
				}
			}()
		}
		wg.Wait()
		close(results)

		seen := make(map[uint64]bool, numGoroutines*perGoroutine)
		for id := range results {
			assert.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
		assert.Len(t, seen, numGoroutines*perGoroutine)
		assert.Equal(t, uint64(numGoroutines*perGoroutine-1), seq.Current())
	})
}
