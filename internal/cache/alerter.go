package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gourl/shortcode/internal/stats"
)

// AlertKeyPrefix prefixes stored collision alerts; the suffix is the unix time.
const AlertKeyPrefix = "alert:collision:"

// DefaultAlertTTL is how long stored alerts stay visible to dashboards.
const DefaultAlertTTL = 24 * time.Hour

// RedisAlerter stores collision alerts in the cache for dashboards.
type RedisAlerter struct {
	cache Cache
	ttl   time.Duration
}

// NewRedisAlerter creates a RedisAlerter.
func NewRedisAlerter(cache Cache) *RedisAlerter {
	return &RedisAlerter{cache: cache, ttl: DefaultAlertTTL}
}

type storedAlert struct {
	stats.Alert
	Severity string `json:"severity"`
}

// Notify writes the alert under alert:collision:<unix>.
func (a *RedisAlerter) Notify(ctx context.Context, alert stats.Alert) error {
	data, err := json.Marshal(storedAlert{Alert: alert, Severity: "high"})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	key := fmt.Sprintf("%s%d", AlertKeyPrefix, alert.RaisedAt.Unix())
	return a.cache.Set(ctx, key, data, a.ttl)
}

// DefaultStatsKey holds the latest published statistics snapshot.
const DefaultStatsKey = "stats:generation"

// StatsSink publishes statistics snapshots to the cache.
type StatsSink struct {
	cache Cache
	key   string
}

// NewStatsSink creates a StatsSink writing to key.
func NewStatsSink(cache Cache, key string) *StatsSink {
	if key == "" {
		key = DefaultStatsKey
	}
	return &StatsSink{cache: cache, key: key}
}

// PublishStats stores snap as JSON without expiry.
func (s *StatsSink) PublishStats(ctx context.Context, snap stats.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return s.cache.Set(ctx, s.key, data, 0)
}

// LoadStats reads the last published snapshot.
func (s *StatsSink) LoadStats(ctx context.Context) (stats.Snapshot, error) {
	var snap stats.Snapshot
	data, err := s.cache.Get(ctx, s.key)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return snap, nil
}
