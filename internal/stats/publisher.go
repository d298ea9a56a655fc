package stats

import (
	"context"
	"sync"
	"time"

	"github.com/gourl/shortcode/pkg/logger"
)

// Sink persists statistics snapshots, for example to a Redis hash.
type Sink interface {
	PublishStats(ctx context.Context, snap Snapshot) error
}

// Publisher periodically writes tracker snapshots to a Sink.
type Publisher struct {
	tracker  *Tracker
	sink     Sink
	interval time.Duration
	log      *logger.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewPublisher creates and starts a Publisher.
func NewPublisher(tracker *Tracker, sink Sink, interval time.Duration, log *logger.Logger) *Publisher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	p := &Publisher{
		tracker:  tracker,
		sink:     sink,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	go p.run()
	return p
}

// Stop stops the publisher after one final publication.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		<-p.doneChan
	})
}

func (p *Publisher) run() {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.publish()
		case <-p.stopChan:
			p.publish()
			return
		}
	}
}

func (p *Publisher) publish() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := p.tracker.Snapshot()
	if err := p.sink.PublishStats(ctx, snap); err != nil {
		p.log.Error("failed to publish generation stats", "error", err)
		return
	}
	p.log.Debug("published generation stats", "codes_issued", snap.CodesIssued, "collision_rate", snap.CollisionRate)
}
