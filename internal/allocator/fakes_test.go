package allocator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gourl/shortcode/internal/idgen"
	"github.com/gourl/shortcode/internal/reserved"
	"github.com/gourl/shortcode/internal/stats"
)

// fakeStore is an in-memory Store that records calls.
type fakeStore struct {
	mu         sync.RWMutex
	codes      map[string]bool
	existsAll  bool
	err        error
	onExists   func()
	calls      int
	batchCalls int
	batchSizes []int
}

func newFakeStore(taken ...string) *fakeStore {
	s := &fakeStore{codes: make(map[string]bool)}
	for _, c := range taken {
		s.codes[c] = true
	}
	return s
}

func (s *fakeStore) Exists(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	s.calls++
	hook := s.onExists
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return false, s.err
	}
	return s.existsAll || s.codes[token], nil
}

func (s *fakeStore) ExistsBatch(_ context.Context, tokens []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchCalls++
	s.batchSizes = append(s.batchSizes, len(tokens))
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]struct{})
	for _, t := range tokens {
		if s.existsAll || s.codes[t] {
			out[t] = struct{}{}
		}
	}
	return out, nil
}

func (s *fakeStore) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// mockStore is a testify mock for asserting exact interactions.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Exists(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ExistsBatch(ctx context.Context, tokens []string) (map[string]struct{}, error) {
	args := m.Called(ctx, tokens)
	found, _ := args.Get(0).(map[string]struct{})
	return found, args.Error(1)
}

// fakeCache is an in-memory Cache with optional failures.
type fakeCache struct {
	mu       sync.RWMutex
	taken    map[string]bool
	readErr  error
	writeErr error
	reads    int
}

func newFakeCache(taken ...string) *fakeCache {
	c := &fakeCache{taken: make(map[string]bool)}
	for _, t := range taken {
		c.taken[t] = true
	}
	return c
}

func (c *fakeCache) ExistsCached(_ context.Context, token string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.readErr != nil {
		return false, false, c.readErr
	}
	if c.taken[token] {
		return true, true, nil
	}
	return false, false, nil
}

func (c *fakeCache) MarkExists(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.taken[token] = true
	return nil
}

func (c *fakeCache) Has(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taken[token]
}

// fakeReserver grants each token once.
type fakeReserver struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newFakeReserver(held ...string) *fakeReserver {
	r := &fakeReserver{held: make(map[string]bool)}
	for _, h := range held {
		r.held[h] = true
	}
	return r
}

func (r *fakeReserver) Reserve(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if r.held[token] {
		return false, nil
	}
	r.held[token] = true
	return true, nil
}

func (r *fakeReserver) Release(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.held, token)
	return nil
}

// scriptedSampler returns the scripted tokens in order, then falls back to
// numbered tokens that never repeat.
func scriptedSampler(tokens ...string) idgen.Sampler {
	var mu sync.Mutex
	i := 0
	return idgen.SamplerFunc(func(length int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		defer func() { i++ }()
		if i < len(tokens) {
			return tokens[i], nil
		}
		return idgen.EncodeWithPadding(uint64(i)+1_000_000, length), nil
	})
}

func testFilter(words ...string) *reserved.Filter {
	if len(words) == 0 {
		words = []string{"admin", "api"}
	}
	return reserved.NewFilter(reserved.Lists{
		Categories:     map[string][]string{"test": words},
		ProfanityWords: []string{"shit"},
	})
}

func newTestAllocator(t testing.TB, cfg Config, deps Deps) (*Allocator, *stats.Tracker) {
	tracker := stats.NewTracker(nil)
	if deps.Stats == nil {
		deps.Stats = tracker
	}
	if deps.Filter == nil {
		deps.Filter = testFilter()
	}
	if deps.Sampler == nil && deps.Sequence == nil {
		deps.Sampler = idgen.NewSampler()
	}
	a, err := New(cfg, deps)
	require.NoError(t, err)
	return a, tracker
}
