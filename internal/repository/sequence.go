package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gourl/shortcode/internal/database"
	"github.com/gourl/shortcode/internal/metrics"
)

// DefaultSequenceName is the PostgreSQL sequence created by the migrations.
const DefaultSequenceName = "short_code_seq"

// PostgresSequence draws sequential IDs from a PostgreSQL sequence, which is
// safe across any number of writers.
type PostgresSequence struct {
	pool    *database.Pool
	query   string
	current atomic.Uint64
}

// NewPostgresSequence creates a sequence reading from the named sequence.
func NewPostgresSequence(pool *database.Pool, name string) *PostgresSequence {
	if name == "" {
		name = DefaultSequenceName
	}
	return &PostgresSequence{
		pool:  pool,
		query: fmt.Sprintf("SELECT nextval('%s')", name),
	}
}

// Next returns the next value of the sequence.
func (s *PostgresSequence) Next(ctx context.Context) (uint64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("nextval", time.Since(start)) }()

	var v int64
	if err := s.pool.QueryRow(ctx, s.query).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}
	if v < 0 {
		return 0, fmt.Errorf("sequence returned negative value %d", v)
	}

	n := uint64(v)
	for {
		cur := s.current.Load()
		if n <= cur || s.current.CompareAndSwap(cur, n) {
			break
		}
	}
	return n, nil
}

// Current returns the highest value this process has drawn.
func (s *PostgresSequence) Current() uint64 {
	return s.current.Load()
}
