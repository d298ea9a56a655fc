package pool

import (
	"context"
	"sync"
	"time"

	"github.com/gourl/shortcode/pkg/logger"
)

// RefillerConfig holds configuration for the background Refiller.
type RefillerConfig struct {
	Target   int           // Size a refill tops the pool up to
	LowWater int           // Refill when the pool holds fewer entries
	Interval time.Duration // Periodic check; also evicts expired entries
	Timeout  time.Duration // Upper bound on a single refill
}

// DefaultRefillerConfig returns the default configuration.
func DefaultRefillerConfig() RefillerConfig {
	return RefillerConfig{
		Target:   1000,
		LowWater: 250,
		Interval: 5 * time.Second,
		Timeout:  30 * time.Second,
	}
}

// Refiller keeps the pool above its low-water mark in the background.
// Callers never wait for it.
type Refiller struct {
	pool *Pool
	cfg  RefillerConfig
	log  *logger.Logger

	signal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	doneChan  chan struct{}
}

// NewRefiller creates a Refiller for p. Call Start to begin refilling.
func NewRefiller(p *Pool, cfg RefillerConfig, log *logger.Logger) *Refiller {
	def := DefaultRefillerConfig()
	if cfg.Target <= 0 {
		cfg.Target = def.Target
	}
	if cfg.LowWater < 0 || cfg.LowWater > cfg.Target {
		cfg.LowWater = cfg.Target / 4
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Refiller{
		pool:     p,
		cfg:      cfg,
		log:      log,
		signal:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		doneChan: make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (r *Refiller) Config() RefillerConfig {
	return r.cfg
}

// Start launches the refill loop and requests an initial fill.
func (r *Refiller) Start() {
	r.startOnce.Do(func() {
		go r.run()
		r.Signal()
	})
}

// Signal asks for a refill check. It never blocks; signals coalesce.
func (r *Refiller) Signal() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Low reports whether the pool is below its low-water mark.
func (r *Refiller) Low() bool {
	return r.pool.Size() < r.cfg.LowWater
}

// Stop cancels any in-flight refill and waits for the loop to exit.
func (r *Refiller) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		started := true
		r.startOnce.Do(func() { started = false })
		if started {
			<-r.doneChan
		}
	})
}

func (r *Refiller) run() {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := r.pool.Evict(now); n > 0 {
				r.log.Debug("evicted expired pool entries", "count", n)
			}
			r.refillIfLow()

		case <-r.signal:
			r.refillIfLow()

		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Refiller) refillIfLow() {
	if !r.Low() {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()

	added, err := r.pool.Refill(ctx, r.cfg.Target)
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.log.Error("pool refill failed", "error", err, "added", added, "size", r.pool.Size())
		return
	}
	r.log.Debug("pool refilled", "added", added, "size", r.pool.Size())
}
