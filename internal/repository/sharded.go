package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gourl/shortcode/internal/database"
)

// Locator maps a token to the index of the shard owning it.
type Locator interface {
	Locate(key string) int
	Partition(keys []string) map[int][]string
}

// ShardedCodeStore spreads codes over several stores by consistent hashing.
type ShardedCodeStore struct {
	locator Locator
	shards  []CodeStore
}

// NewShardedCodeStore creates a store routing through locator. The locator
// must return indexes within shards.
func NewShardedCodeStore(locator Locator, shards []CodeStore) (*ShardedCodeStore, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("at least one shard is required")
	}
	return &ShardedCodeStore{locator: locator, shards: shards}, nil
}

// NewShardedCodeStoreFromRouter creates a PostgreSQL store per router shard.
func NewShardedCodeStoreFromRouter(router *database.ShardRouter) *ShardedCodeStore {
	pools := router.GetAllShards()
	shards := make([]CodeStore, len(pools))
	for i, pool := range pools {
		shards[i] = NewPostgresCodeStore(pool)
	}
	return &ShardedCodeStore{locator: router.Ring(), shards: shards}
}

func (s *ShardedCodeStore) shard(token string) CodeStore {
	return s.shards[s.locator.Locate(token)]
}

// Exists checks the shard owning token.
func (s *ShardedCodeStore) Exists(ctx context.Context, token string) (bool, error) {
	return s.shard(token).Exists(ctx, token)
}

// ExistsBatch queries every shard owning at least one token concurrently.
// Any shard failure fails the whole batch.
func (s *ShardedCodeStore) ExistsBatch(ctx context.Context, tokens []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(tokens) == 0 {
		return found, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for idx, group := range s.locator.Partition(tokens) {
		store, group := s.shards[idx], group
		g.Go(func() error {
			taken, err := store.ExistsBatch(gctx, group)
			if err != nil {
				return fmt.Errorf("shard %d: %w", idx, err)
			}
			mu.Lock()
			for t := range taken {
				found[t] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// deleter is implemented by stores that can remove a token.
type deleter interface {
	Delete(ctx context.Context, token string) error
}

// Insert stores rec in the shard owning its short code. When the alias is
// owned by another shard, a marker row claims the alias there first so that
// Exists on the alias finds it.
func (s *ShardedCodeStore) Insert(ctx context.Context, rec CodeRecord) error {
	codeShard := s.locator.Locate(rec.ShortCode)
	if rec.CustomAlias == "" || rec.CustomAlias == rec.ShortCode {
		return s.shards[codeShard].Insert(ctx, rec)
	}
	aliasShard := s.locator.Locate(rec.CustomAlias)
	if aliasShard == codeShard {
		return s.shards[codeShard].Insert(ctx, rec)
	}

	marker := CodeRecord{ShortCode: rec.CustomAlias, Source: SourceAlias}
	if err := s.shards[aliasShard].Insert(ctx, marker); err != nil {
		return fmt.Errorf("shard %d: %w", aliasShard, err)
	}
	if err := s.shards[codeShard].Insert(ctx, rec); err != nil {
		err = fmt.Errorf("shard %d: %w", codeShard, err)
		if d, ok := s.shards[aliasShard].(deleter); ok {
			if derr := d.Delete(ctx, rec.CustomAlias); derr != nil {
				err = errors.Join(err, fmt.Errorf("orphaned alias marker %q on shard %d: %w", rec.CustomAlias, aliasShard, derr))
			}
		}
		return err
	}
	return nil
}

// HealthCheck checks every shard.
func (s *ShardedCodeStore) HealthCheck(ctx context.Context) error {
	for i, shard := range s.shards {
		if err := shard.HealthCheck(ctx); err != nil {
			return fmt.Errorf("shard %d health check failed: %w", i, err)
		}
	}
	return nil
}

// ShardCount returns the number of shards.
func (s *ShardedCodeStore) ShardCount() int {
	return len(s.shards)
}
