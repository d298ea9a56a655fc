// Package repository provides the persistent record of codes and aliases
// in use, and the database-backed sequence for sequential generation.
package repository

import (
	"context"
	"errors"
)

// Code sources recorded with each row.
const (
	SourceAllocator = "allocator"
	SourceAlias     = "alias"
)

// ErrCodeExists is returned by Insert when the code or alias is already stored.
var ErrCodeExists = errors.New("code already exists")

// CodeRecord is one stored code, optionally paired with a custom alias.
type CodeRecord struct {
	ShortCode   string
	CustomAlias string
	Source      string
}

// CodeStore defines the persistence operations on codes.
type CodeStore interface {
	// Exists reports whether token is in use as a code or an alias.
	Exists(ctx context.Context, token string) (bool, error)

	// ExistsBatch returns the subset of tokens already in use.
	ExistsBatch(ctx context.Context, tokens []string) (map[string]struct{}, error)

	// Insert persists rec. It returns ErrCodeExists on a unique violation.
	Insert(ctx context.Context, rec CodeRecord) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
