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

// recordingAlerter collects alerts for tests.
type recordingAlerter struct {
	mu     sync.RWMutex
	alerts []Alert
	err    error
}

func (r *recordingAlerter) Notify(_ context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.err
}

func (r *recordingAlerter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.alerts)
}

func (r *recordingAlerter) Last() Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alerts[len(r.alerts)-1]
}

func testMonitor(window *Window, alerter Alerter, clock *fakeClock) *Monitor {
	m := NewMonitor(MonitorConfig{
		Threshold:     0.05,
		MinSamples:    100,
		Cooldown:      time.Minute,
		CheckInterval: time.Hour,
		Buffer:        4,
	}, window, alerter, logger.Nop())
	m.now = clock.Now
	return m
}

func fill(w *Window, attempts, collisions int) {
	for i := 0; i < attempts-collisions; i++ {
		w.Record(false)
	}
	for i := 0; i < collisions; i++ {
		w.Record(true)
	}
}

func TestMonitor_Check(t *testing.T) {
	t.Run("below min samples", func(t *testing.T) {
		w, clock := newTestWindow(time.Minute, 6)
		m := testMonitor(w, &recordingAlerter{}, clock)

		fill(w, 50, 25)
		assert.False(t, m.Check())
	})

	t.Run("below threshold", func(t *testing.T) {
		w, clock := newTestWindow(time.Minute, 6)
		m := testMonitor(w, &recordingAlerter{}, clock)

		fill(w, 200, 5)
		assert.False(t, m.Check())
	})

	t.Run("over threshold raises once per cooldown", func(t *testing.T) {
		w, clock := newTestWindow(time.Minute, 6)
		m := testMonitor(w, &recordingAlerter{}, clock)

		fill(w, 100, 10)
		assert.True(t, m.Check())
		assert.False(t, m.Check())

		clock.Advance(2 * time.Minute)
		fill(w, 100, 10)
		assert.True(t, m.Check())
	})
}

func TestMonitor_Dispatch(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 6)
	alerter := &recordingAlerter{}
	m := testMonitor(w, alerter, clock)
	m.Start()

	fill(w, 100, 20)
	require.True(t, m.Check())

	require.Eventually(t, func() bool { return alerter.Count() == 1 }, time.Second, 5*time.Millisecond)
	m.Stop()

	alert := alerter.Last()
	assert.InDelta(t, 0.2, alert.Rate, 1e-9)
	assert.Equal(t, uint64(100), alert.Attempts)
	assert.Equal(t, uint64(20), alert.Collisions)
	assert.Equal(t, time.Minute, alert.Window)
}

func TestMonitor_StopDeliversQueuedAlerts(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 6)
	alerter := &recordingAlerter{err: errors.New("sink down")}
	m := testMonitor(w, alerter, clock)

	fill(w, 100, 20)
	require.True(t, m.Check())

	m.startOnce.Do(func() { go m.run() })
	m.Stop()

	assert.Equal(t, 1, alerter.Count())
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 6)
	m := testMonitor(w, &recordingAlerter{}, clock)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a monitor that was never started")
	}
}

func TestMultiAlerter(t *testing.T) {
	ok := &recordingAlerter{}
	failing := &recordingAlerter{err: errors.New("boom")}

	err := MultiAlerter{failing, ok, NewLogAlerter(logger.Nop())}.Notify(context.Background(), Alert{Rate: 0.5})

	assert.Error(t, err)
	assert.Equal(t, 1, ok.Count())
	assert.Equal(t, 1, failing.Count())
}
