package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gourl/shortcode/internal/database"
	"github.com/gourl/shortcode/internal/metrics"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresCodeStore implements CodeStore using PostgreSQL.
type PostgresCodeStore struct {
	pool *database.Pool
}

// NewPostgresCodeStore creates a new PostgreSQL-backed code store.
func NewPostgresCodeStore(pool *database.Pool) *PostgresCodeStore {
	return &PostgresCodeStore{pool: pool}
}

// Exists reports whether token is stored as a short code or a custom alias.
func (s *PostgresCodeStore) Exists(ctx context.Context, token string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("exists", time.Since(start)) }()

	query := `SELECT EXISTS(SELECT 1 FROM codes WHERE short_code = $1 OR custom_alias = $1)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", err)
	}
	return exists, nil
}

// ExistsBatch returns the tokens already stored, in one round trip.
func (s *PostgresCodeStore) ExistsBatch(ctx context.Context, tokens []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(tokens) == 0 {
		return found, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("exists_batch", time.Since(start)) }()

	query := `
		SELECT short_code FROM codes WHERE short_code = ANY($1)
		UNION
		SELECT custom_alias FROM codes WHERE custom_alias = ANY($1)
	`

	rows, err := s.pool.Query(ctx, query, dedupe(tokens))
	if err != nil {
		return nil, fmt.Errorf("failed to check batch existence: %w", err)
	}
	taken, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read batch existence: %w", err)
	}

	for _, t := range taken {
		found[t] = struct{}{}
	}
	return found, nil
}

// Insert stores rec.
func (s *PostgresCodeStore) Insert(ctx context.Context, rec CodeRecord) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", time.Since(start)) }()

	source := rec.Source
	if source == "" {
		source = SourceAllocator
	}

	query := `INSERT INTO codes (short_code, custom_alias, source) VALUES ($1, NULLIF($2, ''), $3)`

	if _, err := s.pool.Exec(ctx, query, rec.ShortCode, rec.CustomAlias, source); err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrCodeExists, rec.ShortCode)
		}
		return fmt.Errorf("failed to insert code: %w", err)
	}
	return nil
}

// Delete removes the row holding token as a code or alias.
func (s *PostgresCodeStore) Delete(ctx context.Context, token string) error {
	query := `DELETE FROM codes WHERE short_code = $1 OR custom_alias = $1`
	if _, err := s.pool.Exec(ctx, query, token); err != nil {
		return fmt.Errorf("failed to delete code: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *PostgresCodeStore) HealthCheck(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
