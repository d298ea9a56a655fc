package idgen

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
)

// Sequence hands out monotonically increasing numeric IDs for sequential mode.
// Implementations shared by several writers must increment atomically.
type Sequence interface {
	// Next returns the next ID.
	Next(ctx context.Context) (uint64, error)

	// Current returns the last ID handed out by this instance, or 0.
	Current() uint64
}

// Random start range for AtomicSequence so codes are not trivially guessable
// from a fresh process.
const (
	sequenceStartMin = 1_000_000
	sequenceStartMax = 10_000_000
)

// AtomicSequence is a process-local counter. It is only safe as the sole
// writer of a code space; use a Postgres or Redis sequence across processes.
type AtomicSequence struct {
	counter atomic.Uint64
}

// NewAtomicSequence creates a counter starting at a random point in [1e6, 1e7).
func NewAtomicSequence() *AtomicSequence {
	return NewAtomicSequenceFrom(sequenceStartMin + rand.Uint64N(sequenceStartMax-sequenceStartMin))
}

// NewAtomicSequenceFrom creates a counter whose first Next returns start.
func NewAtomicSequenceFrom(start uint64) *AtomicSequence {
	s := &AtomicSequence{}
	s.counter.Store(start)
	return s
}

// Next returns the next ID. It never blocks.
func (s *AtomicSequence) Next(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.counter.Add(1) - 1, nil
}

// Current returns the last ID handed out.
func (s *AtomicSequence) Current() uint64 {
	v := s.counter.Load()
	if v == 0 {
		return 0
	}
	return v - 1
}
