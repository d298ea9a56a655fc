package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gourl/shortcode/pkg/logger"
)

type mockSink struct {
	mu        sync.RWMutex
	snapshots []Snapshot
	err       error
}

func (m *mockSink) PublishStats(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *mockSink) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

func TestPublisher_PeriodicPublish(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordIssued(SourceAllocator)
	sink := &mockSink{}

	p := NewPublisher(tr, sink, 10*time.Millisecond, logger.Nop())
	require.Eventually(t, func() bool { return sink.Count() >= 2 }, time.Second, 5*time.Millisecond)
	p.Stop()

	sink.mu.RLock()
	defer sink.mu.RUnlock()
	assert.Equal(t, uint64(1), sink.snapshots[0].CodesIssued)
}

func TestPublisher_FinalPublishOnStop(t *testing.T) {
	tr := NewTracker(nil)
	sink := &mockSink{}

	p := NewPublisher(tr, sink, time.Hour, logger.Nop())
	p.Stop()
	p.Stop()

	assert.Equal(t, 1, sink.Count())
}

func TestPublisher_SinkError(t *testing.T) {
	sink := &mockSink{err: errors.New("redis unavailable")}

	p := NewPublisher(NewTracker(nil), sink, time.Hour, logger.Nop())
	p.Stop()

	assert.Equal(t, 0, sink.Count())
}
