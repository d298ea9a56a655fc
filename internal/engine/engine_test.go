package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gourl/shortcode/internal/allocator"
	"github.com/gourl/shortcode/internal/cache"
	"github.com/gourl/shortcode/internal/config"
	"github.com/gourl/shortcode/internal/idgen"
	"github.com/gourl/shortcode/internal/repository"
	"github.com/gourl/shortcode/internal/reserved"
	"github.com/gourl/shortcode/internal/stats"
	"github.com/gourl/shortcode/pkg/logger"
)

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		Mode:                 config.ModeRandom,
		MinLength:            4,
		DefaultLength:        7,
		MaxLength:            12,
		MaxAttempts:          5,
		MaxReservedSkips:     100,
		MaxBatchSize:         1000,
		BatchAttemptFactor:   10,
		PoolTarget:           100,
		PoolLowWater:         25,
		PoolCapacity:         200,
		PoolEntryTTL:         10 * time.Minute,
		PoolRefillInterval:   time.Hour,
		AlertThreshold:       0.05,
		AlertMinSamples:      10,
		AlertWindow:          time.Minute,
		AlertCooldown:        time.Minute,
		WidenThreshold:       0.01,
		ExistenceTTL:         time.Minute,
		ReservationTTL:       15 * time.Minute,
		StatsPublishInterval: time.Hour,
		SequenceSource:       config.SequenceMemory,
	}
}

func testFilter(words ...string) *reserved.Filter {
	return reserved.NewFilter(reserved.Lists{
		Categories: map[string][]string{"system_routes": words},
	})
}

// scriptedSampler returns the scripted tokens in order, then fails.
func scriptedSampler(tokens ...string) idgen.Sampler {
	var mu sync.Mutex
	return idgen.SamplerFunc(func(length int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(tokens) == 0 {
			return "", errors.New("sampler script exhausted")
		}
		t := tokens[0]
		tokens = tokens[1:]
		return t, nil
	})
}

// failingStore reports every token as taken, or fails.
type failingStore struct {
	err error
}

func (s failingStore) Exists(context.Context, string) (bool, error) {
	return s.err == nil, s.err
}

func (s failingStore) ExistsBatch(_ context.Context, tokens []string) (map[string]struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		out[t] = struct{}{}
	}
	return out, nil
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) PublishStats(ctx context.Context, snap stats.Snapshot) error {
	return m.Called(ctx, snap).Error(0)
}

func newTestEngine(t *testing.T, cfg config.EngineConfig, deps Deps) *Engine {
	t.Helper()
	if deps.Store == nil {
		deps.Store = repository.NewMemoryStore()
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	e, err := New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

func TestNew(t *testing.T) {
	t.Run("requires store", func(t *testing.T) {
		_, err := New(testConfig(), Deps{})
		assert.Error(t, err)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.MinLength = 9
		_, err := New(cfg, Deps{Store: repository.NewMemoryStore()})
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		e := newTestEngine(t, testConfig(), Deps{})
		assert.Equal(t, 7, e.DefaultLength())
		assert.Equal(t, 7, e.pool.Length())
	})
}

func TestEngine_GetCodeFromPool(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig(), Deps{})

	added, err := e.pool.Refill(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 10, added)

	code, err := e.GetCode(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, code, 7)
	assert.True(t, idgen.IsValid(code))

	snap := e.GetStats()
	assert.Equal(t, uint64(1), snap.PoolHits)
	assert.Zero(t, snap.PoolMisses)
	assert.Equal(t, uint64(1), snap.CodesIssued)
	assert.Equal(t, 9, snap.PoolSize)
}

func TestEngine_GetCodePoolMissFallsBack(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig(), Deps{Sampler: scriptedSampler("abc1234")})

	code, err := e.GetCode(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "abc1234", code)

	snap := e.GetStats()
	assert.Zero(t, snap.PoolHits)
	assert.Equal(t, uint64(1), snap.PoolMisses)
	assert.Equal(t, uint64(1), snap.CodesIssued)
}

func TestEngine_GetCodeOtherLengthBypassesPool(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig(), Deps{})
	_, err := e.pool.Refill(ctx, 5)
	require.NoError(t, err)

	code, err := e.GetCode(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, code, 10)

	snap := e.GetStats()
	assert.Zero(t, snap.PoolHits)
	assert.Zero(t, snap.PoolMisses)
	assert.Equal(t, 5, snap.PoolSize)
}

func TestEngine_GetCodeErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid length", func(t *testing.T) {
		e := newTestEngine(t, testConfig(), Deps{})
		for _, n := range []int{-1, 3, 13} {
			_, err := e.GetCode(ctx, n)
			assert.ErrorIs(t, err, allocator.ErrInvalidLength, "length %d", n)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		e := newTestEngine(t, testConfig(), Deps{Store: failingStore{}})

		_, err := e.GetCode(ctx, 0)
		var exhausted *allocator.ExhaustedRetriesError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 5, exhausted.Attempts)
		assert.Equal(t, 7, exhausted.Length)
		assert.Equal(t, uint64(5), e.GetStats().CollisionsObserved)
	})

	t.Run("store failure", func(t *testing.T) {
		e := newTestEngine(t, testConfig(), Deps{Store: failingStore{err: errors.New("connection refused")}})

		_, err := e.GetCode(ctx, 0)
		var storeErr *allocator.StoreError
		assert.ErrorAs(t, err, &storeErr)
	})
}

func TestEngine_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore("taken01")
	existence := cache.NewExistenceCache(cache.NewMemoryCache(), time.Minute, time.Minute)

	e := newTestEngine(t, testConfig(), Deps{
		Store:    store,
		Cache:    existence,
		Reserver: existence,
		Filter:   testFilter("admin", "api"),
		Sampler:  scriptedSampler("admin", "taken01", "fresh01"),
	})

	code, err := e.GetCode(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "fresh01", code)

	snap := e.GetStats()
	assert.Equal(t, uint64(1), snap.CollisionsObserved)
	assert.Equal(t, uint64(1), snap.ReservedRejections)
	assert.Equal(t, uint64(1), snap.CodesIssued)
	assert.Equal(t, uint64(1), snap.PoolMisses)

	exists, known, err := existence.ExistsCached(ctx, "taken01")
	require.NoError(t, err)
	assert.True(t, known && exists, "collided code is remembered by the cache")

	require.NoError(t, store.Insert(ctx, repository.CodeRecord{ShortCode: code}))
	require.NoError(t, e.MarkAssigned(ctx, code))
	exists, known, err = existence.ExistsCached(ctx, code)
	require.NoError(t, err)
	assert.True(t, known && exists)
}

func TestEngine_ConcurrentGetCodeUnique(t *testing.T) {
	ctx := context.Background()
	existence := cache.NewExistenceCache(cache.NewMemoryCache(), time.Minute, time.Minute)
	e := newTestEngine(t, testConfig(), Deps{Cache: existence, Reserver: existence})

	_, err := e.pool.Refill(ctx, 100)
	require.NoError(t, err)

	const workers, perWorker = 20, 15
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				code, err := e.GetCode(ctx, 0)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				_, dup := seen[code]
				seen[code] = struct{}{}
				mu.Unlock()
				assert.False(t, dup, "code %s issued twice", code)
			}
		}()
	}
	wg.Wait()

	snap := e.GetStats()
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, uint64(workers*perWorker), snap.CodesIssued)
	assert.Equal(t, uint64(workers*perWorker), snap.PoolHits+snap.PoolMisses)
	assert.GreaterOrEqual(t, snap.PoolHits, uint64(100))
}

func TestEngine_GetCodeForAlias(t *testing.T) {
	ctx := context.Background()
	existence := cache.NewExistenceCache(cache.NewMemoryCache(), time.Minute, time.Minute)
	store := repository.NewMemoryStore("taken-alias")
	e := newTestEngine(t, testConfig(), Deps{
		Store:    store,
		Cache:    existence,
		Reserver: existence,
		Filter:   testFilter("admin", "api"),
	})
	_, err := e.pool.Refill(ctx, 5)
	require.NoError(t, err)

	t.Run("available alias", func(t *testing.T) {
		code, err := e.GetCodeForAlias(ctx, "my-promo")
		require.NoError(t, err)
		assert.Equal(t, "my-promo", code)
	})

	t.Run("alias reserved by a previous call", func(t *testing.T) {
		_, err := e.GetCodeForAlias(ctx, "my-promo")
		assert.ErrorIs(t, err, allocator.ErrAliasTaken)
	})

	t.Run("reserved word", func(t *testing.T) {
		_, err := e.GetCodeForAlias(ctx, "Admin")
		assert.ErrorIs(t, err, allocator.ErrReservedAlias)
	})

	t.Run("taken alias offers suggestions", func(t *testing.T) {
		_, err := e.GetCodeForAlias(ctx, "taken-alias")
		var taken *allocator.AliasTakenError
		require.ErrorAs(t, err, &taken)
		assert.NotEmpty(t, taken.Suggestions)
		assert.LessOrEqual(t, len(taken.Suggestions), allocator.MaxSuggestions)
	})

	t.Run("invalid syntax", func(t *testing.T) {
		_, err := e.GetCodeForAlias(ctx, "a")
		assert.ErrorIs(t, err, reserved.ErrInvalidAlias)
	})

	t.Run("pool untouched", func(t *testing.T) {
		snap := e.GetStats()
		assert.Equal(t, 5, snap.PoolSize)
		assert.Zero(t, snap.PoolHits)
		assert.Equal(t, uint64(1), snap.CodesIssued)
	})
}

func TestEngine_ReleaseAllowsReuse(t *testing.T) {
	ctx := context.Background()
	existence := cache.NewExistenceCache(cache.NewMemoryCache(), time.Minute, time.Minute)
	e := newTestEngine(t, testConfig(), Deps{Cache: existence, Reserver: existence, Filter: testFilter("admin")})

	_, err := e.GetCodeForAlias(ctx, "launch")
	require.NoError(t, err)
	require.NoError(t, e.Release(ctx, "launch"))

	_, err = e.GetCodeForAlias(ctx, "launch")
	assert.NoError(t, err)
}

func TestEngine_ReloadReserved(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig(), Deps{Filter: testFilter("admin")})

	_, err := e.GetCodeForAlias(ctx, "promo")
	require.NoError(t, err)

	reservedWords, _ := e.ReloadReserved(reserved.Lists{
		Categories: map[string][]string{"marketing": {"promo", "sale"}},
	})
	assert.Equal(t, 2, reservedWords)

	_, err = e.GetCodeForAlias(ctx, "sale")
	assert.ErrorIs(t, err, allocator.ErrReservedAlias)
	_, err = e.GetCodeForAlias(ctx, "admin")
	assert.NoError(t, err, "previous list is fully replaced")
}

func TestEngine_EncodeDecodeID(t *testing.T) {
	e := newTestEngine(t, testConfig(), Deps{})

	for _, id := range []uint64{0, 61, 62, 1_000_000, 1<<64 - 1} {
		code := e.EncodeID(id)
		got, err := e.DecodeID(code)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	_, err := e.DecodeID("bad!")
	assert.ErrorIs(t, err, idgen.ErrInvalidCharacter)
}

func TestEngine_SequentialMode(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Mode = config.ModeSequential
	e := newTestEngine(t, cfg, Deps{Sequence: idgen.NewAtomicSequenceFrom(100)})

	first, err := e.GetCode(ctx, 7)
	require.NoError(t, err)
	second, err := e.GetCode(ctx, 7)
	require.NoError(t, err)

	assert.Len(t, first, 7)
	n1, err := e.DecodeID(first)
	require.NoError(t, err)
	n2, err := e.DecodeID(second)
	require.NoError(t, err)
	assert.Equal(t, n1+1, n2)
	assert.Equal(t, n2, e.GetStats().SequenceCurrent)
}

func TestEngine_AutoWiden(t *testing.T) {
	cfg := testConfig()
	cfg.AutoWiden = true
	cfg.MaxLength = 8
	e := newTestEngine(t, cfg, Deps{})

	t.Run("below min samples", func(t *testing.T) {
		e.tracker.RecordCollision()
		assert.False(t, e.maybeWiden())
		assert.Equal(t, 7, e.DefaultLength())
	})

	t.Run("rate above threshold widens", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			e.tracker.RecordCollision()
		}
		e.tracker.RecordUnique(20)

		assert.True(t, e.maybeWiden())
		assert.Equal(t, 8, e.DefaultLength())
		assert.Equal(t, 8, e.pool.Length())

		_, attempts := e.tracker.Window().Rate()
		assert.Zero(t, attempts, "window restarts after widening")
	})

	t.Run("maximum length", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			e.tracker.RecordCollision()
		}
		assert.False(t, e.maybeWiden())
		assert.Equal(t, 8, e.DefaultLength())
	})
}

func TestEngine_AutoWidenDisabled(t *testing.T) {
	e := newTestEngine(t, testConfig(), Deps{})
	for i := 0; i < 2*widenEvery; i++ {
		e.afterIssue()
	}
	assert.Zero(t, e.sinceWiden.Load())
}

func TestEngine_StartStop(t *testing.T) {
	sink := new(mockSink)
	sink.On("PublishStats", mock.Anything, mock.AnythingOfType("stats.Snapshot")).Return(nil)

	e := newTestEngine(t, testConfig(), Deps{Sink: sink})
	e.Start()
	e.Start()

	require.Eventually(t, func() bool { return e.pool.Size() == 100 }, 2*time.Second, 10*time.Millisecond)

	code, err := e.GetCode(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, code, 7)

	e.Stop()
	e.Stop()

	assert.Zero(t, e.pool.Size(), "pool is drained on stop")
	sink.AssertCalled(t, "PublishStats", mock.Anything, mock.AnythingOfType("stats.Snapshot"))
}

func BenchmarkEngine_GetCodePooled(b *testing.B) {
	cfg := testConfig()
	cfg.PoolCapacity = b.N + 1
	cfg.PoolTarget = b.N + 1
	e, err := New(cfg, Deps{Store: repository.NewMemoryStore(), Log: logger.Nop()})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	if _, err := e.pool.Refill(ctx, b.N); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.GetCode(ctx, 0); err != nil {
			b.Fatal(fmt.Errorf("iteration %d: %w", i, err))
		}
	}
}

func TestEngine_GetCodeNeverServesOtherPoolLength(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig(), Deps{Sampler: idgen.SamplerFunc(func(length int) (string, error) {
		if length == 7 {
			return "abc1234", nil
		}
		return idgen.NewSampler().Sample(length)
	})})

	e.pool.SetLength(8)
	_, err := e.pool.Refill(ctx, 5)
	require.NoError(t, err)

	code, err := e.GetCode(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "abc1234", code)
	assert.Equal(t, 5, e.pool.Size())
	assert.Zero(t, e.GetStats().PoolMisses, "a request for another length is not a pool miss")
}

func TestEngine_PooledCodeNotReissuedByPeer(t *testing.T) {
	ctx := context.Background()

	t.Run("reservation shorter than pool entry rejected", func(t *testing.T) {
		cfg := testConfig()
		cfg.PoolEntryTTL = 10 * time.Minute
		cfg.ReservationTTL = 50 * time.Millisecond
		_, err := New(cfg, Deps{Store: repository.NewMemoryStore()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ENGINE_RESERVATION_TTL")
	})

	// peers returns two engines sharing one store and one existence cache.
	peers := func(t *testing.T, ttl time.Duration, a, b idgen.Sampler) (*Engine, *Engine) {
		t.Helper()
		cfg := testConfig()
		cfg.PoolEntryTTL = ttl
		cfg.ReservationTTL = ttl
		store := repository.NewMemoryStore()
		existence := cache.NewExistenceCache(cache.NewMemoryCache(), time.Minute, ttl)
		deps := func(s idgen.Sampler) Deps {
			return Deps{Store: store, Cache: existence, Reserver: existence, Sampler: s}
		}
		return newTestEngine(t, cfg, deps(a)), newTestEngine(t, cfg, deps(b))
	}

	t.Run("peer skips a pooled code", func(t *testing.T) {
		a, b := peers(t, time.Minute, scriptedSampler("AAAAAAA"), scriptedSampler("AAAAAAA", "BBBBBBB"))
		added, err := a.pool.Refill(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, 1, added)

		fromB, err := b.GetCode(ctx, 0)
		require.NoError(t, err)
		fromA, err := a.GetCode(ctx, 0)
		require.NoError(t, err)

		assert.Equal(t, "BBBBBBB", fromB)
		assert.Equal(t, "AAAAAAA", fromA)
		assert.Equal(t, uint64(1), b.GetStats().CollisionsObserved)
	})

	t.Run("pool entry expires with its reservation", func(t *testing.T) {
		ttl := 50 * time.Millisecond
		a, b := peers(t, ttl, scriptedSampler("AAAAAAA", "CCCCCCC"), scriptedSampler("AAAAAAA"))
		_, err := a.pool.Refill(ctx, 1)
		require.NoError(t, err)

		time.Sleep(2 * ttl)

		fromB, err := b.GetCode(ctx, 0)
		require.NoError(t, err)
		fromA, err := a.GetCode(ctx, 0)
		require.NoError(t, err)

		assert.Equal(t, "AAAAAAA", fromB)
		assert.NotEqual(t, fromB, fromA)
	})
}

func TestEngine_ExhaustionLogCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEngine(t, testConfig(), Deps{
		Store: failingStore{},
		Log:   logger.New(&buf, "warn"),
	})

	ctx := logger.ContextWithRequestID(context.Background(), "req-exhausted")
	_, err := e.GetCode(ctx, 9)
	require.ErrorIs(t, err, allocator.ErrExhaustedRetries)

	var found bool
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		if entry["msg"] != "code allocation exhausted retries" {
			continue
		}
		found = true
		assert.Equal(t, "req-exhausted", entry["request_id"])
		assert.Equal(t, float64(9), entry["length"])
	}
	assert.True(t, found, "engine warning not logged: %s", buf.String())
}
