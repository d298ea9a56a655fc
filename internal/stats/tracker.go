// Package stats tracks generation statistics and watches the collision rate.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/gourl/shortcode/internal/metrics"
)

// Issue sources used for the codes_issued breakdown in metrics.
const (
	SourcePool      = "pool"
	SourceAllocator = "allocator"
	SourceAlias     = "alias"
)

// Snapshot is a point-in-time copy of the counters. Each field is exact at
// the moment it was read; fields are not read under a common lock.
type Snapshot struct {
	CodesIssued        uint64    `json:"codes_issued"`
	CollisionsObserved uint64    `json:"collisions_observed"`
	ReservedRejections uint64    `json:"reserved_rejections"`
	PoolHits           uint64    `json:"pool_hits"`
	PoolMisses         uint64    `json:"pool_misses"`
	CacheErrors        uint64    `json:"cache_errors"`
	SequenceCurrent    uint64    `json:"sequence_current"`
	PoolSize           int       `json:"pool_size"`
	CollisionRate      float64   `json:"collision_rate"`
	WindowAttempts     uint64    `json:"window_attempts"`
	WindowRate         float64   `json:"window_collision_rate"`
	TakenAt            time.Time `json:"taken_at"`
}

// Tracker holds process-wide generation counters. All methods are safe for
// concurrent use and never block.
type Tracker struct {
	issued             atomic.Uint64
	collisions         atomic.Uint64
	reservedRejections atomic.Uint64
	poolHits           atomic.Uint64
	poolMisses         atomic.Uint64
	cacheErrors        atomic.Uint64
	sequenceCurrent    atomic.Uint64

	poolSize atomic.Pointer[func() int]
	window   *Window
	now      func() time.Time
}

// NewTracker creates a Tracker. window may be nil.
func NewTracker(window *Window) *Tracker {
	return &Tracker{window: window, now: time.Now}
}

// Window returns the sliding window fed by this tracker, or nil.
func (t *Tracker) Window() *Window {
	return t.window
}

// SetPoolSizeFunc registers the function reporting the current pool size.
func (t *Tracker) SetPoolSizeFunc(fn func() int) {
	t.poolSize.Store(&fn)
}

// RecordIssued counts a code handed to a caller.
func (t *Tracker) RecordIssued(source string) {
	t.issued.Add(1)
	metrics.RecordIssued(source)
	if source != SourcePool && t.window != nil {
		t.window.Record(false)
	}
}

// RecordCollision counts a candidate that already existed.
func (t *Tracker) RecordCollision() {
	t.collisions.Add(1)
	metrics.RecordCollision()
	if t.window != nil {
		t.window.Record(true)
	}
}

// RecordUnique counts a batch candidate that was verified unique. Batch
// codes are counted as issued only when withdrawn from the pool.
func (t *Tracker) RecordUnique(n int) {
	if t.window == nil {
		return
	}
	for i := 0; i < n; i++ {
		t.window.Record(false)
	}
}

// RecordReservedRejection counts a candidate dropped by the reserved filter.
func (t *Tracker) RecordReservedRejection() {
	t.reservedRejections.Add(1)
	metrics.RecordReservedRejection()
}

// RecordPoolHit counts a request served from the pool.
func (t *Tracker) RecordPoolHit() {
	t.poolHits.Add(1)
	metrics.RecordPoolRequest(true)
}

// RecordPoolMiss counts a request the pool could not serve.
func (t *Tracker) RecordPoolMiss() {
	t.poolMisses.Add(1)
	metrics.RecordPoolRequest(false)
}

// RecordCacheError counts a cache failure.
func (t *Tracker) RecordCacheError() {
	t.cacheErrors.Add(1)
	metrics.RecordCacheError()
}

// ObserveSequence raises sequence_current to v if v is larger.
func (t *Tracker) ObserveSequence(v uint64) {
	for {
		cur := t.sequenceCurrent.Load()
		if v <= cur || t.sequenceCurrent.CompareAndSwap(cur, v) {
			return
		}
	}
}

// CollisionRate returns collisions / max(1, issued + collisions).
func (t *Tracker) CollisionRate() float64 {
	return collisionRate(t.issued.Load(), t.collisions.Load())
}

func collisionRate(issued, collisions uint64) float64 {
	attempts := issued + collisions
	if attempts == 0 {
		attempts = 1
	}
	return float64(collisions) / float64(attempts)
}

// Snapshot copies the counters and publishes the gauges to Prometheus.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		CodesIssued:        t.issued.Load(),
		CollisionsObserved: t.collisions.Load(),
		ReservedRejections: t.reservedRejections.Load(),
		PoolHits:           t.poolHits.Load(),
		PoolMisses:         t.poolMisses.Load(),
		CacheErrors:        t.cacheErrors.Load(),
		SequenceCurrent:    t.sequenceCurrent.Load(),
		TakenAt:            t.now().UTC(),
	}
	s.CollisionRate = collisionRate(s.CodesIssued, s.CollisionsObserved)

	if fn := t.poolSize.Load(); fn != nil {
		s.PoolSize = (*fn)()
	}
	if t.window != nil {
		s.WindowRate, s.WindowAttempts = t.window.Rate()
	}

	metrics.SetCollisionRate(s.CollisionRate)
	metrics.SetSequenceCurrent(s.SequenceCurrent)
	metrics.SetPoolSize(s.PoolSize)

	return s
}
