// Package allocator produces codes that are verified unique against the
// existence cache and the persistent store.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gourl/shortcode/internal/idgen"
	"github.com/gourl/shortcode/internal/metrics"
	"github.com/gourl/shortcode/internal/stats"
	"github.com/gourl/shortcode/pkg/logger"
)

// Generation modes.
const (
	ModeRandom     = "random"
	ModeSequential = "sequential"
)

// Store is the authoritative record of codes and aliases in use.
type Store interface {
	// Exists reports whether token is in use as a code or an alias.
	Exists(ctx context.Context, token string) (bool, error)

	// ExistsBatch returns the subset of tokens already in use.
	ExistsBatch(ctx context.Context, tokens []string) (map[string]struct{}, error)
}

// Cache remembers codes known to be taken.
type Cache interface {
	// ExistsCached reports whether token is taken; known is false on a miss.
	ExistsCached(ctx context.Context, token string) (exists, known bool, err error)

	// MarkExists records that token is taken.
	MarkExists(ctx context.Context, token string) error
}

// Reserver claims a verified code so concurrent writers cannot both hand it out.
type Reserver interface {
	Reserve(ctx context.Context, token string) (bool, error)
	Release(ctx context.Context, token string) error
}

// Filter rejects reserved and profane tokens.
type Filter interface {
	Allowed(token string) bool
	IsReserved(token string) bool
}

// Recorder receives generation statistics.
type Recorder interface {
	RecordIssued(source string)
	RecordCollision()
	RecordUnique(n int)
	RecordReservedRejection()
	RecordCacheError()
	ObserveSequence(v uint64)
}

// Config holds the allocator limits.
type Config struct {
	Mode               string
	MinLength          int
	MaxLength          int
	MaxAttempts        int // Existence-checked candidates per Allocate call
	MaxReservedSkips   int // Filtered candidates tolerated per Allocate call
	MaxBatchSize       int
	BatchAttemptFactor int // AllocateBatch draws at most count*factor candidates
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeRandom,
		MinLength:          4,
		MaxLength:          12,
		MaxAttempts:        5,
		MaxReservedSkips:   100,
		MaxBatchSize:       1000,
		BatchAttemptFactor: 10,
	}
}

// Deps are the collaborators of an Allocator. Store and Filter are required.
// Sampler is required in random mode and Sequence in sequential mode.
type Deps struct {
	Store    Store
	Cache    Cache
	Reserver Reserver
	Filter   Filter
	Sampler  idgen.Sampler
	Sequence idgen.Sequence
	Stats    Recorder
	Log      *logger.Logger
}

// Allocator draws candidates and checks them until one is unique.
// It is safe for concurrent use.
type Allocator struct {
	cfg      Config
	store    Store
	cache    Cache
	reserver Reserver
	filter   Filter
	sampler  idgen.Sampler
	sequence idgen.Sequence
	stats    Recorder
	log      *logger.Logger
}

// New creates an Allocator.
func New(cfg Config, deps Deps) (*Allocator, error) {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxReservedSkips < 0 {
		cfg.MaxReservedSkips = 0
	}
	if cfg.MaxBatchSize < 1 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.BatchAttemptFactor < 1 {
		cfg.BatchAttemptFactor = def.BatchAttemptFactor
	}
	if cfg.MinLength < 1 || cfg.MaxLength < cfg.MinLength {
		return nil, fmt.Errorf("%w: bounds [%d, %d]", ErrInvalidLength, cfg.MinLength, cfg.MaxLength)
	}

	if deps.Store == nil {
		return nil, errors.New("allocator: store is required")
	}
	if deps.Filter == nil {
		return nil, errors.New("allocator: filter is required")
	}
	switch cfg.Mode {
	case ModeRandom:
		if deps.Sampler == nil {
			return nil, errors.New("allocator: sampler is required in random mode")
		}
	case ModeSequential:
		if deps.Sequence == nil {
			return nil, errors.New("allocator: sequence is required in sequential mode")
		}
	default:
		return nil, fmt.Errorf("allocator: unknown mode %q", cfg.Mode)
	}

	if deps.Stats == nil {
		deps.Stats = stats.NewTracker(nil)
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}

	return &Allocator{
		cfg:      cfg,
		store:    deps.Store,
		cache:    deps.Cache,
		reserver: deps.Reserver,
		filter:   deps.Filter,
		sampler:  deps.Sampler,
		sequence: deps.Sequence,
		stats:    deps.Stats,
		log:      deps.Log,
	}, nil
}

// Config returns the effective configuration.
func (a *Allocator) Config() Config {
	return a.cfg
}

// Allocate returns a code of the requested length that is not reserved and
// not present in the cache or the store. In sequential mode length is a
// minimum: the code grows once the sequence outgrows it.
func (a *Allocator) Allocate(ctx context.Context, length int) (string, error) {
	if err := a.checkLength(length); err != nil {
		return "", err
	}

	start := time.Now()
	code, err := a.allocate(ctx, length)
	metrics.RecordAllocation(outcome(err), time.Since(start))
	return code, err
}

func (a *Allocator) allocate(ctx context.Context, length int) (string, error) {
	attempts, skips := 0, 0

	for attempts < a.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate, err := a.candidate(ctx, length)
		if err != nil {
			return "", err
		}

		if !a.filter.Allowed(candidate) {
			a.stats.RecordReservedRejection()
			skips++
			if skips > a.cfg.MaxReservedSkips {
				break
			}
			continue
		}
		attempts++

		taken, err := a.taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if taken {
			a.collide(ctx, candidate, attempts)
			continue
		}

		if !a.reserve(ctx, candidate) {
			a.collide(ctx, candidate, attempts)
			continue
		}

		a.stats.RecordIssued(stats.SourceAllocator)
		return candidate, nil
	}

	metrics.RecordExhausted()
	a.log.Warn("exhausted retries allocating short code",
		"length", length, "attempts", attempts, "reserved_skips", skips)
	return "", &ExhaustedRetriesError{Attempts: attempts, Length: length}
}

// candidate draws the next raw candidate.
func (a *Allocator) candidate(ctx context.Context, length int) (string, error) {
	if a.cfg.Mode == ModeSequential {
		id, err := a.sequence.Next(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to advance sequence: %w", err)
		}
		a.stats.ObserveSequence(id)
		return idgen.EncodeWithPadding(id, length), nil
	}

	code, err := a.sampler.Sample(length)
	if err != nil {
		return "", fmt.Errorf("failed to sample candidate: %w", err)
	}
	return code, nil
}

// taken checks the cache first, then the store. Cache failures fall through
// to the store.
func (a *Allocator) taken(ctx context.Context, token string) (bool, error) {
	if a.cache != nil {
		exists, known, err := a.cache.ExistsCached(ctx, token)
		switch {
		case err != nil:
			a.stats.RecordCacheError()
			a.log.Warn("existence cache unavailable, checking store", "error", err)
		case known:
			metrics.RecordCacheHit()
			return exists, nil
		default:
			metrics.RecordCacheMiss()
		}
	}

	exists, err := a.store.Exists(ctx, token)
	if err != nil {
		return false, &StoreError{Op: "exists", Err: err}
	}
	return exists, nil
}

// collide records a collision and remembers the token in the cache.
func (a *Allocator) collide(ctx context.Context, token string, attempt int) {
	a.stats.RecordCollision()
	a.log.Debug("short code collision", "attempt", attempt)

	if a.cache == nil {
		return
	}
	if err := a.cache.MarkExists(ctx, token); err != nil {
		a.stats.RecordCacheError()
		a.log.Warn("failed to cache taken code", "error", err)
	}
}

// reserve claims token when a Reserver is configured. A reservation that
// cannot be attempted degrades to success; a lost race returns false.
func (a *Allocator) reserve(ctx context.Context, token string) bool {
	if a.reserver == nil {
		return true
	}
	ok, err := a.reserver.Reserve(ctx, token)
	if err != nil {
		a.stats.RecordCacheError()
		a.log.Warn("failed to reserve code, continuing without reservation", "error", err)
		return true
	}
	return ok
}

// Release drops the reservation on token, for example when persisting the
// link failed.
func (a *Allocator) Release(ctx context.Context, token string) error {
	if a.reserver == nil {
		return nil
	}
	if err := a.reserver.Release(ctx, token); err != nil {
		return &CacheError{Op: "release", Err: err}
	}
	return nil
}

// MarkAssigned records that token has been persisted, so later candidates
// collide in the cache without touching the store.
func (a *Allocator) MarkAssigned(ctx context.Context, token string) error {
	if a.cache == nil {
		return nil
	}
	if err := a.cache.MarkExists(ctx, token); err != nil {
		return &CacheError{Op: "mark", Err: err}
	}
	return nil
}

func (a *Allocator) checkLength(length int) error {
	if length < a.cfg.MinLength || length > a.cfg.MaxLength {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidLength, length, a.cfg.MinLength, a.cfg.MaxLength)
	}
	return nil
}

func outcome(err error) string {
	var storeErr *StoreError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrExhaustedRetries):
		return "exhausted"
	case errors.As(err, &storeErr):
		return "store_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
