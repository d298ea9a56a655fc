package repository

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process CodeStore for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tokens  map[string]struct{}
	records []CodeRecord
}

// NewMemoryStore creates a store pre-populated with tokens.
func NewMemoryStore(tokens ...string) *MemoryStore {
	s := &MemoryStore{tokens: make(map[string]struct{}, len(tokens))}
	for _, t := range tokens {
		s.tokens[t] = struct{}{}
	}
	return s
}

// Exists reports whether token was inserted.
func (s *MemoryStore) Exists(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok, nil
}

// ExistsBatch returns the stored subset of tokens.
func (s *MemoryStore) ExistsBatch(_ context.Context, tokens []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]struct{})
	for _, t := range tokens {
		if _, ok := s.tokens[t]; ok {
			found[t] = struct{}{}
		}
	}
	return found, nil
}

// Insert stores the code and alias of rec.
func (s *MemoryStore) Insert(_ context.Context, rec CodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[rec.ShortCode]; ok {
		return fmt.Errorf("%w: %s", ErrCodeExists, rec.ShortCode)
	}
	if rec.CustomAlias != "" {
		if _, ok := s.tokens[rec.CustomAlias]; ok {
			return fmt.Errorf("%w: %s", ErrCodeExists, rec.CustomAlias)
		}
		s.tokens[rec.CustomAlias] = struct{}{}
	}
	s.tokens[rec.ShortCode] = struct{}{}
	s.records = append(s.records, rec)
	return nil
}

// Delete removes token and, when it is a stored code or alias, the record
// holding it.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.ShortCode == token || rec.CustomAlias == token {
			delete(s.tokens, rec.ShortCode)
			if rec.CustomAlias != "" {
				delete(s.tokens, rec.CustomAlias)
			}
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

// Len returns the number of stored tokens, codes and aliases alike.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
