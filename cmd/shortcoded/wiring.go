package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gourl/shortcode/internal/cache"
	"github.com/gourl/shortcode/internal/config"
	"github.com/gourl/shortcode/internal/database"
	"github.com/gourl/shortcode/internal/engine"
	"github.com/gourl/shortcode/internal/idgen"
	"github.com/gourl/shortcode/internal/repository"
	"github.com/gourl/shortcode/internal/reserved"
	"github.com/gourl/shortcode/internal/stats"
	"github.com/gourl/shortcode/pkg/logger"
)

// sequenceStart seeds shared counters; it matches the database sequence.
const sequenceStart = 1_000_000

// stack holds the infrastructure behind an Engine.
type stack struct {
	store     repository.CodeStore
	kv        cache.Cache
	existence *cache.ExistenceCache
	router    *database.ShardRouter
	sequence  idgen.Sequence
	alerter   stats.Alerter
	sink      stats.Sink
	filter    *reserved.Filter
	shared    bool // kv is Redis and visible to other instances

	closers []func()
}

// buildStack connects to the configured backends. Outside production a
// missing database or Redis falls back to in-process implementations.
func buildStack(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stack, error) {
	s := &stack{}

	if err := s.connectCache(ctx, cfg, log); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.connectStore(ctx, cfg, log); err != nil {
		s.Close()
		return nil, err
	}

	seq, err := s.newSequence(ctx, cfg.Engine)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.sequence = seq

	s.existence = cache.NewExistenceCache(s.kv, cfg.Engine.ExistenceTTL, cfg.Engine.ReservationTTL)
	s.filter = reserved.NewFilter(reserved.Load(cfg.Engine.ReservedPath, log))

	alerters := stats.MultiAlerter{stats.NewLogAlerter(log.With("component", "alerts"))}
	if s.shared {
		alerters = append(alerters, cache.NewRedisAlerter(s.kv))
		s.sink = cache.NewStatsSink(s.kv, cache.DefaultStatsKey)
	}
	s.alerter = alerters

	return s, nil
}

func (s *stack) connectCache(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.RedisEnabled() {
		rc, err := cache.NewRedisCache(ctx, &cfg.Redis)
		if err == nil {
			s.kv = rc
			s.shared = true
			s.closers = append(s.closers, func() { _ = rc.Close() })
			log.Info("connected to redis", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
			return nil
		}
		if cfg.App.IsProduction() {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Warn("redis unavailable, using in-memory cache", "error", err)
	}

	mc := cache.NewMemoryCache()
	s.kv = mc
	s.closers = append(s.closers, func() { _ = mc.Close() })
	return nil
}

func (s *stack) connectStore(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.DatabaseEnabled() {
		if cfg.App.IsProduction() {
			return errors.New("database configuration is required in production")
		}
		log.Warn("database not configured, using in-memory code store")
		s.store = repository.NewMemoryStore()
		return nil
	}

	router, err := database.RouterFromConfig(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.router = router
	s.closers = append(s.closers, router.Close)
	s.store = repository.NewShardedCodeStoreFromRouter(router)
	log.Info("connected to database", "shards", router.ShardCount())
	return nil
}

// newSequence returns the counter used in sequential mode.
func (s *stack) newSequence(ctx context.Context, cfg config.EngineConfig) (idgen.Sequence, error) {
	switch cfg.SequenceSource {
	case config.SequenceMemory:
		return idgen.NewAtomicSequence(), nil
	case config.SequenceSnowflake:
		seq, err := idgen.NewSnowflakeSequence(int64(cfg.NodeID))
		if err != nil {
			return nil, err
		}
		return seq, nil
	case config.SequenceRedis:
		if !s.shared {
			return nil, errors.New("redis sequence requires a redis connection")
		}
		seq := cache.NewRedisSequence(s.kv, cache.DefaultSequenceKey)
		if err := seq.Init(ctx, sequenceStart); err != nil {
			return nil, err
		}
		return seq, nil
	case config.SequencePostgres:
		if s.router == nil {
			return nil, errors.New("postgres sequence requires a database connection")
		}
		return repository.NewPostgresSequence(s.router.GetAllShards()[0], repository.DefaultSequenceName), nil
	default:
		return nil, fmt.Errorf("unknown sequence source %q", cfg.SequenceSource)
	}
}

// engineDeps returns the collaborators for engine.New.
func (s *stack) engineDeps(log *logger.Logger) engine.Deps {
	return engine.Deps{
		Store:    s.store,
		Cache:    s.existence,
		Reserver: s.existence,
		Filter:   s.filter,
		Sequence: s.sequence,
		Alerter:  s.alerter,
		Sink:     s.sink,
		Log:      log,
	}
}

// Close releases connections in reverse order of acquisition.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
