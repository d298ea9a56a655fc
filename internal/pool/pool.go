// Package pool keeps a buffer of pre-generated, verified-unique codes so the
// common request path is served without any I/O.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gourl/shortcode/internal/metrics"
)

// BatchAllocator produces verified-unique codes in bulk.
type BatchAllocator interface {
	AllocateBatch(ctx context.Context, count, length int) ([]string, error)
}

// Entry is a pooled code. Ownership passes to the caller on withdrawal.
type Entry struct {
	Code        string
	GeneratedAt time.Time
}

// Config holds configuration for the Pool.
type Config struct {
	Length    int           // Length of every pooled code
	Capacity  int           // Hard upper bound on pooled entries
	BatchSize int           // Largest single AllocateBatch request
	EntryTTL  time.Duration // Entries older than this are discarded; 0 disables
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Length:    7,
		Capacity:  2000,
		BatchSize: 1000,
		EntryTTL:  10 * time.Minute,
	}
}

// Pool is a FIFO buffer of codes. Withdrawals never perform I/O.
type Pool struct {
	cfg   Config
	alloc BatchAllocator

	mu      sync.Mutex
	entries []Entry

	group singleflight.Group
	now   func() time.Time
}

// New creates an empty Pool filled through alloc.
func New(cfg Config, alloc BatchAllocator) (*Pool, error) {
	if alloc == nil {
		return nil, errors.New("pool: allocator is required")
	}
	def := DefaultConfig()
	if cfg.Length < 1 {
		cfg.Length = def.Length
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = def.Capacity
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	return &Pool{
		cfg:   cfg,
		alloc: alloc,
		now:   time.Now,
	}, nil
}

// Length returns the code length the pool serves.
func (p *Pool) Length() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Length
}

// SetLength switches the pool to codes of length n and discards the entries
// of the previous length. It returns how many entries were discarded.
func (p *Pool) SetLength(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n < 1 || n == p.cfg.Length {
		return 0
	}
	dropped := len(p.entries)
	p.cfg.Length = n
	p.entries = nil
	metrics.SetPoolSize(0)
	return dropped
}

// Capacity returns the maximum number of pooled entries.
func (p *Pool) Capacity() int {
	return p.cfg.Capacity
}

// Size returns the number of pooled entries, including any not yet evicted.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Withdraw removes and returns the oldest live entry. Expired entries met on
// the way are discarded. Each entry is handed out at most once.
func (p *Pool) Withdraw() (Entry, bool) {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.withdrawLocked(now)
}

// WithdrawLength is Withdraw restricted to codes of length n. The length is
// checked under the same lock as the withdrawal, so a concurrent SetLength
// cannot hand out a code of the new length.
func (p *Pool) WithdrawLength(n int) (Entry, bool) {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if n != p.cfg.Length {
		return Entry{}, false
	}
	return p.withdrawLocked(now)
}

func (p *Pool) withdrawLocked(now time.Time) (Entry, bool) {
	for len(p.entries) > 0 {
		e := p.entries[0]
		p.entries[0] = Entry{}
		p.entries = p.entries[1:]
		if p.expired(e, now) {
			continue
		}
		metrics.SetPoolSize(len(p.entries))
		return e, true
	}

	metrics.SetPoolSize(0)
	return Entry{}, false
}

// Evict drops entries that expired by now and returns how many were dropped.
func (p *Pool) Evict(now time.Time) int {
	if p.cfg.EntryTTL <= 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Entries are appended in GeneratedAt order.
	n := 0
	for n < len(p.entries) && p.expired(p.entries[n], now) {
		p.entries[n] = Entry{}
		n++
	}
	p.entries = p.entries[n:]
	metrics.SetPoolSize(len(p.entries))
	return n
}

// Drain empties the pool and returns the entries it held.
func (p *Pool) Drain() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.entries
	p.entries = nil
	metrics.SetPoolSize(0)
	return out
}

// Refill tops the pool up to target entries, capped at Capacity, and returns
// how many entries were added. Concurrent calls share one refill. Codes are
// generated without holding the lock; each completed batch is appended as a
// whole, so a cancelled refill leaves only complete batches behind.
func (p *Pool) Refill(ctx context.Context, target int) (int, error) {
	v, err, _ := p.group.Do("refill", func() (any, error) {
		return p.refill(ctx, target)
	})
	added, _ := v.(int)
	metrics.RecordPoolRefill(err)
	return added, err
}

func (p *Pool) refill(ctx context.Context, target int) (int, error) {
	if target > p.cfg.Capacity {
		target = p.cfg.Capacity
	}

	added := 0
	for {
		deficit := target - p.Size()
		if deficit <= 0 {
			return added, nil
		}
		if deficit > p.cfg.BatchSize {
			deficit = p.cfg.BatchSize
		}

		// Entries age from before their reservations were taken.
		started := p.now()
		length := p.Length()
		codes, err := p.alloc.AllocateBatch(ctx, deficit, length)
		if err != nil {
			return added, err
		}
		n := p.append(codes, length, started)
		if n == 0 {
			return added, nil
		}
		added += n
	}
}

// append adds codes generated at length. Codes of a stale length are dropped.
func (p *Pool) append(codes []string, length int, generatedAt time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if length != p.cfg.Length {
		return 0
	}
	room := p.cfg.Capacity - len(p.entries)
	if room < len(codes) {
		codes = codes[:max(room, 0)]
	}
	for _, c := range codes {
		p.entries = append(p.entries, Entry{Code: c, GeneratedAt: generatedAt})
	}
	metrics.SetPoolSize(len(p.entries))
	return len(codes)
}

func (p *Pool) expired(e Entry, now time.Time) bool {
	return p.cfg.EntryTTL > 0 && now.Sub(e.GeneratedAt) >= p.cfg.EntryTTL
}
