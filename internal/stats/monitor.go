package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gourl/shortcode/internal/metrics"
	"github.com/gourl/shortcode/pkg/logger"
)

// MonitorConfig holds configuration for the collision Monitor.
type MonitorConfig struct {
	Threshold     float64       // Windowed collision rate that raises an alert
	MinSamples    uint64        // Attempts required in the window before alerting
	Cooldown      time.Duration // Minimum time between two alerts
	CheckInterval time.Duration // How often the window is evaluated
	Buffer        int           // Pending alerts; extra alerts are dropped
}

// DefaultMonitorConfig returns the default configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Threshold:     0.05,
		MinSamples:    100,
		Cooldown:      5 * time.Minute,
		CheckInterval: 10 * time.Second,
		Buffer:        16,
	}
}

// Monitor evaluates the sliding window and dispatches alerts without
// blocking the generation path.
type Monitor struct {
	cfg     MonitorConfig
	window  *Window
	alerter Alerter
	log     *logger.Logger

	alerts    chan Alert
	lastAlert atomic.Int64
	now       func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewMonitor creates a Monitor. Call Start to begin periodic checks.
func NewMonitor(cfg MonitorConfig, window *Window, alerter Alerter, log *logger.Logger) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	return &Monitor{
		cfg:      cfg,
		window:   window,
		alerter:  alerter,
		log:      log,
		alerts:   make(chan Alert, cfg.Buffer),
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Check evaluates the window once and queues an alert when the rate is over
// the threshold. It reports whether an alert was queued.
func (m *Monitor) Check() bool {
	attempts, collisions := m.window.Counts()
	if attempts < m.cfg.MinSamples || attempts == 0 {
		return false
	}

	rate := float64(collisions) / float64(attempts)
	if rate <= m.cfg.Threshold {
		return false
	}

	now := m.now()
	last := m.lastAlert.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < m.cfg.Cooldown {
		return false
	}
	if !m.lastAlert.CompareAndSwap(last, now.UnixNano()) {
		return false
	}

	alert := Alert{
		Rate:       rate,
		Threshold:  m.cfg.Threshold,
		Attempts:   attempts,
		Collisions: collisions,
		Window:     m.window.Size(),
		RaisedAt:   now.UTC(),
	}
	metrics.RecordAlert()

	select {
	case m.alerts <- alert:
		return true
	default:
		m.log.Warn("collision alert dropped, dispatcher busy", "collision_rate", rate)
		return false
	}
}

// Start launches the check and dispatch loop. Calling it twice is a no-op.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		go m.run()
	})
}

// Stop stops the loop after delivering queued alerts.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		started := true
		m.startOnce.Do(func() { started = false })
		if started {
			<-m.doneChan
		}
	})
}

func (m *Monitor) run() {
	defer close(m.doneChan)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check()

		case alert := <-m.alerts:
			m.deliver(alert)

		case <-m.stopChan:
			for {
				select {
				case alert := <-m.alerts:
					m.deliver(alert)
				default:
					return
				}
			}
		}
	}
}

func (m *Monitor) deliver(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.alerter.Notify(ctx, alert); err != nil {
		m.log.Error("failed to deliver collision alert", "error", err)
	}
}
