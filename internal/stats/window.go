package stats

import (
	"sync"
	"time"
)

// Window is a sliding window of generation attempts and collisions, kept as a
// ring of fixed-width buckets.
type Window struct {
	mu      sync.Mutex
	width   time.Duration
	buckets []bucket
	now     func() time.Time
}

type bucket struct {
	epoch      int64
	attempts   uint64
	collisions uint64
}

// NewWindow creates a window covering size, split into n buckets.
func NewWindow(size time.Duration, n int) *Window {
	if n < 1 {
		n = 1
	}
	width := size / time.Duration(n)
	if width <= 0 {
		width = time.Millisecond
	}
	return &Window{
		width:   width,
		buckets: make([]bucket, n),
		now:     time.Now,
	}
}

// Size returns the span covered by the window.
func (w *Window) Size() time.Duration {
	return w.width * time.Duration(len(w.buckets))
}

// Record adds one attempt, marked as a collision or not.
func (w *Window) Record(collision bool) {
	epoch := w.now().UnixNano() / int64(w.width)

	w.mu.Lock()
	defer w.mu.Unlock()

	b := &w.buckets[w.index(epoch)]
	if b.epoch != epoch {
		*b = bucket{epoch: epoch}
	}
	b.attempts++
	if collision {
		b.collisions++
	}
}

// Counts returns the attempts and collisions inside the window.
func (w *Window) Counts() (attempts, collisions uint64) {
	epoch := w.now().UnixNano() / int64(w.width)
	oldest := epoch - int64(len(w.buckets)) + 1

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range w.buckets {
		if b.epoch >= oldest && b.epoch <= epoch {
			attempts += b.attempts
			collisions += b.collisions
		}
	}
	return attempts, collisions
}

// Rate returns the windowed collision rate and the number of attempts it is
// based on.
func (w *Window) Rate() (rate float64, attempts uint64) {
	attempts, collisions := w.Counts()
	if attempts == 0 {
		return 0, 0
	}
	return float64(collisions) / float64(attempts), attempts
}

// Reset clears every bucket.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.buckets {
		w.buckets[i] = bucket{}
	}
}

func (w *Window) index(epoch int64) int {
	n := int64(len(w.buckets))
	return int(((epoch % n) + n) % n)
}
