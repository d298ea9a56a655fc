package stats

import (
	"context"
	"errors"
	"time"

	"github.com/gourl/shortcode/pkg/logger"
)

// Alert reports a collision rate above the configured threshold.
type Alert struct {
	Rate       float64       `json:"collision_rate"`
	Threshold  float64       `json:"threshold"`
	Attempts   uint64        `json:"attempts"`
	Collisions uint64        `json:"collisions"`
	Window     time.Duration `json:"window"`
	RaisedAt   time.Time     `json:"timestamp"`
}

// Alerter delivers alerts somewhere an operator will see them.
type Alerter interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogAlerter writes alerts to the structured log.
type LogAlerter struct {
	log *logger.Logger
}

// NewLogAlerter creates a LogAlerter.
func NewLogAlerter(log *logger.Logger) *LogAlerter {
	return &LogAlerter{log: log}
}

// Notify logs the alert at warn level.
func (a *LogAlerter) Notify(_ context.Context, alert Alert) error {
	a.log.Warn("high collision rate detected",
		"collision_rate", alert.Rate,
		"threshold", alert.Threshold,
		"attempts", alert.Attempts,
		"collisions", alert.Collisions,
		"window", alert.Window.String(),
	)
	return nil
}

// MultiAlerter fans an alert out to every Alerter, returning the joined errors.
type MultiAlerter []Alerter

// Notify calls each alerter in order; one failure does not stop the rest.
func (m MultiAlerter) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, a := range m {
		if err := a.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
