package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gourl/shortcode/internal/cache"
	"github.com/gourl/shortcode/internal/config"
	"github.com/gourl/shortcode/internal/idgen"
	"github.com/gourl/shortcode/internal/repository"
	"github.com/gourl/shortcode/pkg/logger"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEncodeCommand(t *testing.T) {
	t.Run("shortest form", func(t *testing.T) {
		out, err := execute(t, "encode", "0", "61", "62")
		require.NoError(t, err)
		assert.Equal(t, "0\nz\n10\n", out)
	})

	t.Run("padded", func(t *testing.T) {
		out, err := execute(t, "encode", "--pad", "7", "62")
		require.NoError(t, err)
		assert.Equal(t, "0000010\n", out)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := execute(t, "encode", "-5")
		assert.Error(t, err)
	})
}

func TestDecodeCommand(t *testing.T) {
	out, err := execute(t, "decode", "z", "10")
	require.NoError(t, err)
	assert.Equal(t, "61\n62\n", out)

	_, err = execute(t, "decode", "ab$")
	assert.ErrorIs(t, err, idgen.ErrInvalidCharacter)
}

func TestSampleCommand(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("ENGINE_MODE", config.ModeRandom)

	out, err := execute(t, "sample", "-n", "25", "-l", "8", "--stats")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 26)

	seen := make(map[string]struct{})
	for _, code := range lines[:25] {
		assert.Len(t, code, 8)
		assert.True(t, idgen.IsValid(code), code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 25)
	assert.True(t, strings.HasPrefix(lines[25], "issued=25 "), lines[25])

	t.Run("rejects zero count", func(t *testing.T) {
		_, err := execute(t, "sample", "-n", "0")
		assert.Error(t, err)
	})
}

func testStackConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		Engine: config.EngineConfig{
			ExistenceTTL:   time.Minute,
			ReservationTTL: time.Minute,
			SequenceSource: config.SequenceMemory,
		},
	}
}

func TestBuildStack_InMemoryFallback(t *testing.T) {
	st, err := buildStack(context.Background(), testStackConfig(), logger.Nop())
	require.NoError(t, err)
	defer st.Close()

	assert.IsType(t, &repository.MemoryStore{}, st.store)
	assert.IsType(t, &cache.MemoryCache{}, st.kv)
	assert.False(t, st.shared)
	assert.Nil(t, st.sink)
	assert.NotNil(t, st.filter)
	assert.NoError(t, st.existence.Ping(context.Background()))

	deps := st.engineDeps(logger.Nop())
	assert.Same(t, st.existence, deps.Reserver)
}

func TestBuildStack_ProductionRequiresDatabase(t *testing.T) {
	cfg := testStackConfig()
	cfg.App.Env = "production"

	_, err := buildStack(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestNewSequence(t *testing.T) {
	st := &stack{kv: cache.NewMemoryCache()}

	t.Run("memory", func(t *testing.T) {
		seq, err := st.newSequence(context.Background(), config.EngineConfig{SequenceSource: config.SequenceMemory})
		require.NoError(t, err)
		assert.IsType(t, &idgen.AtomicSequence{}, seq)
	})

	t.Run("snowflake", func(t *testing.T) {
		seq, err := st.newSequence(context.Background(), config.EngineConfig{SequenceSource: config.SequenceSnowflake, NodeID: 3})
		require.NoError(t, err)
		assert.IsType(t, &idgen.SnowflakeSequence{}, seq)
	})

	t.Run("redis without connection", func(t *testing.T) {
		_, err := st.newSequence(context.Background(), config.EngineConfig{SequenceSource: config.SequenceRedis})
		assert.Error(t, err)
	})

	t.Run("redis over shared cache", func(t *testing.T) {
		shared := &stack{kv: cache.NewMemoryCache(), shared: true}
		seq, err := shared.newSequence(context.Background(), config.EngineConfig{SequenceSource: config.SequenceRedis})
		require.NoError(t, err)

		n, err := seq.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(sequenceStart+1), n)
	})

	t.Run("postgres without connection", func(t *testing.T) {
		_, err := st.newSequence(context.Background(), config.EngineConfig{SequenceSource: config.SequencePostgres})
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := st.newSequence(context.Background(), config.EngineConfig{SequenceSource: "zookeeper"})
		assert.Error(t, err)
	})
}
