package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gourl/shortcode/internal/config"
)

// ShardConfig represents configuration for a single shard.
type ShardConfig struct {
	ID     int
	Config *config.DatabaseConfig
}

// ShardRouter routes short codes to the database shard that owns them.
type ShardRouter struct {
	shards []*Pool
	ring   *Ring
	mu     sync.RWMutex
}

// NewShardRouter opens a pool per shard and builds the hash ring over them.
func NewShardRouter(ctx context.Context, configs []ShardConfig) (*ShardRouter, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one shard configuration is required")
	}

	router := &ShardRouter{
		shards: make([]*Pool, len(configs)),
		ring:   NewRing(len(configs), DefaultVirtualNodes),
	}

	for i, cfg := range configs {
		pool, err := newShardPool(ctx, i, cfg.Config)
		if err != nil {
			for j := 0; j < i; j++ {
				router.shards[j].Close()
			}
			return nil, fmt.Errorf("failed to create pool for shard %d: %w", cfg.ID, err)
		}
		router.shards[i] = pool
	}

	return router, nil
}

// RouterFromConfig opens one shard per entry of cfg.Shards().
func RouterFromConfig(ctx context.Context, cfg config.DatabaseConfig) (*ShardRouter, error) {
	shards := cfg.Shards()
	configs := make([]ShardConfig, len(shards))
	for i := range shards {
		configs[i] = ShardConfig{ID: i, Config: &shards[i]}
	}
	return NewShardRouter(ctx, configs)
}

// SingleShardRouter creates a router with a single shard (no sharding).
func SingleShardRouter(ctx context.Context, cfg *config.DatabaseConfig) (*ShardRouter, error) {
	return NewShardRouter(ctx, []ShardConfig{
		{ID: 0, Config: cfg},
	})
}

// GetShard returns the pool that owns key.
func (r *ShardRouter) GetShard(key string) *Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shards[r.ring.Locate(key)]
}

// GetShardIndex returns the shard index for the given key.
func (r *ShardRouter) GetShardIndex(key string) int {
	return r.ring.Locate(key)
}

// Ring returns the router's hash ring.
func (r *ShardRouter) Ring() *Ring {
	return r.ring
}

// GetAllShards returns all shard pools in index order.
func (r *ShardRouter) GetAllShards() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shards := make([]*Pool, len(r.shards))
	copy(shards, r.shards)
	return shards
}

// ShardCount returns the number of shards.
func (r *ShardRouter) ShardCount() int {
	return r.ring.Nodes()
}

// HealthCheck checks every shard and reports all failing ones. It also
// refreshes the per-shard connection metrics.
func (r *ShardRouter) HealthCheck(ctx context.Context) error {
	var errs []error
	for _, shard := range r.GetAllShards() {
		if err := shard.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", shard.Shard(), err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns the connection usage of every shard in index order.
func (r *ShardRouter) Stats() []PoolStats {
	shards := r.GetAllShards()
	out := make([]PoolStats, len(shards))
	for i, shard := range shards {
		out[i] = shard.Stats()
	}
	return out
}

// Close closes all shard connections.
func (r *ShardRouter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, shard := range r.shards {
		shard.Close()
	}
}
