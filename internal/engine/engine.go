// Package engine is the caller-facing API for short code generation. It
// serves codes from the pre-generated pool and falls back to the
// collision-checked allocator on a miss.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gourl/shortcode/internal/allocator"
	"github.com/gourl/shortcode/internal/config"
	"github.com/gourl/shortcode/internal/idgen"
	"github.com/gourl/shortcode/internal/pool"
	"github.com/gourl/shortcode/internal/reserved"
	"github.com/gourl/shortcode/internal/stats"
	"github.com/gourl/shortcode/pkg/logger"
)

// widenEvery is the number of issued codes between two auto-widen checks.
const widenEvery = 1000

// windowBuckets is the resolution of the collision sliding window.
const windowBuckets = 10

// Deps are the collaborators of an Engine. Store is required.
type Deps struct {
	Store    allocator.Store
	Cache    allocator.Cache    // Optional existence cache
	Reserver allocator.Reserver // Optional cross-process reservation
	Filter   *reserved.Filter   // Defaults to the embedded lists
	Sampler  idgen.Sampler      // Defaults to a nanoid sampler
	Sequence idgen.Sequence     // Defaults to a process-local sequence
	Alerter  stats.Alerter      // Defaults to logging alerts
	Sink     stats.Sink         // Optional statistics publication target
	Log      *logger.Logger
}

// Engine hands out unique short codes. It is safe for concurrent use.
type Engine struct {
	cfg config.EngineConfig

	alloc    *allocator.Allocator
	pool     *pool.Pool
	refiller *pool.Refiller
	filter   *reserved.Filter
	tracker  *stats.Tracker
	monitor  *stats.Monitor
	sink     stats.Sink
	log      *logger.Logger

	defaultLength atomic.Int64
	sinceWiden    atomic.Uint64
	widenMu       sync.Mutex

	publisher *stats.Publisher
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates an Engine from validated configuration.
func New(cfg config.EngineConfig, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Filter == nil {
		deps.Filter = reserved.NewFilter(reserved.DefaultLists())
	}
	if deps.Sampler == nil {
		deps.Sampler = idgen.NewSampler()
	}
	if deps.Sequence == nil {
		deps.Sequence = idgen.NewAtomicSequence()
	}
	if deps.Alerter == nil {
		deps.Alerter = stats.NewLogAlerter(deps.Log)
	}

	window := stats.NewWindow(cfg.AlertWindow, windowBuckets)
	tracker := stats.NewTracker(window)

	alloc, err := allocator.New(allocator.Config{
		Mode:               cfg.Mode,
		MinLength:          cfg.MinLength,
		MaxLength:          cfg.MaxLength,
		MaxAttempts:        cfg.MaxAttempts,
		MaxReservedSkips:   cfg.MaxReservedSkips,
		MaxBatchSize:       cfg.MaxBatchSize,
		BatchAttemptFactor: cfg.BatchAttemptFactor,
	}, allocator.Deps{
		Store:    deps.Store,
		Cache:    deps.Cache,
		Reserver: deps.Reserver,
		Filter:   deps.Filter,
		Sampler:  deps.Sampler,
		Sequence: deps.Sequence,
		Stats:    tracker,
		Log:      deps.Log.With("component", "allocator"),
	})
	if err != nil {
		return nil, err
	}

	p, err := pool.New(pool.Config{
		Length:    cfg.DefaultLength,
		Capacity:  cfg.PoolCapacity,
		BatchSize: cfg.MaxBatchSize,
		EntryTTL:  cfg.PoolEntryTTL,
	}, alloc)
	if err != nil {
		return nil, err
	}
	tracker.SetPoolSizeFunc(p.Size)

	monitor := stats.NewMonitor(stats.MonitorConfig{
		Threshold:  cfg.AlertThreshold,
		MinSamples: uint64(max(cfg.AlertMinSamples, 0)),
		Cooldown:   cfg.AlertCooldown,
	}, window, deps.Alerter, deps.Log.With("component", "monitor"))

	e := &Engine{
		cfg:   cfg,
		alloc: alloc,
		pool:  p,
		refiller: pool.NewRefiller(p, pool.RefillerConfig{
			Target:   cfg.PoolTarget,
			LowWater: cfg.PoolLowWater,
			Interval: cfg.PoolRefillInterval,
		}, deps.Log.With("component", "pool")),
		filter:  deps.Filter,
		tracker: tracker,
		monitor: monitor,
		sink:    deps.Sink,
		log:     deps.Log,
	}
	e.defaultLength.Store(int64(cfg.DefaultLength))
	return e, nil
}

// Start launches the pool refiller, the collision monitor and, when a sink
// is configured, the statistics publisher.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.refiller.Start()
		e.monitor.Start()
		if e.sink != nil {
			e.publisher = stats.NewPublisher(e.tracker, e.sink, e.cfg.StatsPublishInterval, e.log.With("component", "publisher"))
		}
		e.log.Info("engine started",
			"mode", e.cfg.Mode,
			"default_length", e.DefaultLength(),
			"pool_target", e.cfg.PoolTarget,
		)
	})
}

// Stop stops the background workers. Pooled codes are discarded; their
// reservations expire on their own.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.refiller.Stop()
		e.monitor.Stop()
		if e.publisher != nil {
			e.publisher.Stop()
		}
		e.log.Info("engine stopped", "discarded_pool_entries", len(e.pool.Drain()))
	})
}

// DefaultLength returns the length used when GetCode is called with 0.
func (e *Engine) DefaultLength() int {
	return int(e.defaultLength.Load())
}

// GetCode returns a unique code of the given length; 0 selects the default
// length. Codes of the pooled length are served from the pool when possible.
// The caller owns the returned code: if persisting it fails, the code is not
// returned to the pool.
func (e *Engine) GetCode(ctx context.Context, length int) (string, error) {
	if length == 0 {
		length = e.DefaultLength()
	}

	if entry, ok := e.pool.WithdrawLength(length); ok {
		e.tracker.RecordPoolHit()
		e.tracker.RecordIssued(stats.SourcePool)
		if e.refiller.Low() {
			e.refiller.Signal()
		}
		e.afterIssue()
		return entry.Code, nil
	}
	if length == e.pool.Length() {
		e.tracker.RecordPoolMiss()
		e.refiller.Signal()
	}

	code, err := e.alloc.Allocate(ctx, length)
	if err != nil {
		var exhausted *allocator.ExhaustedRetriesError
		if errors.As(err, &exhausted) {
			e.log.WithContext(ctx).Warn("code allocation exhausted retries",
				"attempts", exhausted.Attempts,
				"length", exhausted.Length,
				"collision_rate", e.tracker.CollisionRate(),
			)
		}
		return "", err
	}
	e.afterIssue()
	return code, nil
}

// GetCodeForAlias checks that alias can be used as a code and returns it.
// The pool is never consumed. When the alias is taken the error carries
// suggested alternatives.
func (e *Engine) GetCodeForAlias(ctx context.Context, alias string) (string, error) {
	if err := e.alloc.CheckAlias(ctx, alias); err != nil {
		return "", err
	}
	e.tracker.RecordIssued(stats.SourceAlias)
	return alias, nil
}

// GetStats returns a snapshot of the generation statistics.
func (e *Engine) GetStats() stats.Snapshot {
	return e.tracker.Snapshot()
}

// MarkAssigned records that code has been persisted.
func (e *Engine) MarkAssigned(ctx context.Context, code string) error {
	return e.alloc.MarkAssigned(ctx, code)
}

// Release drops the reservation on a code the caller will not use.
func (e *Engine) Release(ctx context.Context, code string) error {
	return e.alloc.Release(ctx, code)
}

// ReloadReserved replaces the reserved and profanity lists.
func (e *Engine) ReloadReserved(lists reserved.Lists) (reservedWords, profanityWords int) {
	e.filter.Reload(lists)
	reservedWords, profanityWords = e.filter.Size()
	e.log.Info("reserved lists reloaded", "reserved_words", reservedWords, "profanity_words", profanityWords)
	return reservedWords, profanityWords
}

// EncodeID returns the base62 form of id.
func (e *Engine) EncodeID(id uint64) string {
	return idgen.Encode(id)
}

// DecodeID parses a base62 code back to its numeric ID.
func (e *Engine) DecodeID(code string) (uint64, error) {
	return idgen.Decode(code)
}

// afterIssue periodically widens the default length when the windowed
// collision rate stays above the configured threshold.
func (e *Engine) afterIssue() {
	if !e.cfg.AutoWiden {
		return
	}
	if e.sinceWiden.Add(1)%widenEvery != 0 {
		return
	}
	e.maybeWiden()
}

func (e *Engine) maybeWiden() bool {
	e.widenMu.Lock()
	defer e.widenMu.Unlock()

	window := e.tracker.Window()
	rate, attempts := window.Rate()
	if attempts < uint64(max(e.cfg.AlertMinSamples, 1)) || rate <= e.cfg.WidenThreshold {
		return false
	}

	cur := e.DefaultLength()
	if cur >= e.cfg.MaxLength {
		e.log.Warn("collision rate above widen threshold at maximum length",
			"rate", rate, "length", cur)
		return false
	}

	next := cur + 1
	e.defaultLength.Store(int64(next))
	dropped := e.pool.SetLength(next)
	window.Reset()
	e.refiller.Signal()

	e.log.Warn("widened default code length",
		"from", cur, "to", next, "rate", rate, "dropped_pool_entries", dropped)
	return true
}
