// Package database provides PostgreSQL connectivity, shard routing and
// schema migrations for the code store.
package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gourl/shortcode/internal/config"
	"github.com/gourl/shortcode/internal/metrics"
)

const (
	defaultMaxConns = 10
	maxPoolConns    = 1000

	applicationName = "shortcoded"
)

// Pool is the connection pool of one shard.
type Pool struct {
	*pgxpool.Pool
	shard int
}

// PoolStats is a snapshot of connection usage on one shard.
type PoolStats struct {
	Shard             int
	MaxConns          int32
	TotalConns        int32
	IdleConns         int32
	AcquiredConns     int32
	EmptyAcquireCount int64
}

// Saturated reports whether every allowed connection is checked out, so
// existence checks on the shard queue for a connection.
func (s PoolStats) Saturated() bool {
	return s.MaxConns > 0 && s.AcquiredConns >= s.MaxConns
}

// NewPool connects to a single database and verifies it with a ping.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	return newShardPool(ctx, 0, cfg)
}

func newShardPool(ctx context.Context, shard int, cfg *config.DatabaseConfig) (*Pool, error) {
	poolConfig, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool, shard: shard}, nil
}

// PoolConfig builds the pgx pool configuration for cfg. Out-of-range
// connection limits fall back to the defaults.
func PoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(BuildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConns
	if cfg.MaxOpenConns > 0 && cfg.MaxOpenConns <= maxPoolConns {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 && int32(cfg.MaxIdleConns) <= poolConfig.MaxConns {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName

	return poolConfig, nil
}

// BuildDSN constructs a PostgreSQL connection URL. Credentials are escaped.
func BuildDSN(cfg *config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// Shard returns the index of the shard this pool serves.
func (p *Pool) Shard() int {
	return p.shard
}

// Stats returns the current connection usage and exports it as metrics.
func (p *Pool) Stats() PoolStats {
	s := p.Pool.Stat()
	stats := PoolStats{
		Shard:             p.shard,
		MaxConns:          s.MaxConns(),
		TotalConns:        s.TotalConns(),
		IdleConns:         s.IdleConns(),
		AcquiredConns:     s.AcquiredConns(),
		EmptyAcquireCount: s.EmptyAcquireCount(),
	}
	metrics.SetDBConnections(p.shard, stats.AcquiredConns, stats.IdleConns, stats.TotalConns, stats.MaxConns)
	return stats
}

// HealthCheck pings the shard and refreshes its connection metrics.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	p.Stats()
	return nil
}
