package cache

import (
	"context"
	"time"
)

// Key prefixes for code existence and short-lived reservations.
const (
	ExistsKeyPrefix  = "shortcode:"
	ReserveKeyPrefix = "reserve:"
)

// Default TTLs for ExistenceCache entries.
const (
	DefaultExistenceTTL   = 5 * time.Minute
	DefaultReservationTTL = 15 * time.Minute
)

// ExistenceCache remembers which codes are known to be taken. Only positive
// answers are cached, so a miss always means "ask the store". It also
// implements short-lived reservations so two writers cannot hand out the
// same verified code.
type ExistenceCache struct {
	cache          Cache
	existsTTL      time.Duration
	reservationTTL time.Duration
}

// NewExistenceCache wraps cache. Zero TTLs select the defaults.
func NewExistenceCache(cache Cache, existsTTL, reservationTTL time.Duration) *ExistenceCache {
	if existsTTL <= 0 {
		existsTTL = DefaultExistenceTTL
	}
	if reservationTTL <= 0 {
		reservationTTL = DefaultReservationTTL
	}
	return &ExistenceCache{
		cache:          cache,
		existsTTL:      existsTTL,
		reservationTTL: reservationTTL,
	}
}

// ExistsCached reports whether token is known to be taken or reserved. known
// is false when the cache has no answer.
func (c *ExistenceCache) ExistsCached(ctx context.Context, token string) (exists, known bool, err error) {
	vals, err := c.cache.MGet(ctx, ExistsKeyPrefix+token, ReserveKeyPrefix+token)
	if err != nil {
		return false, false, err
	}
	for _, v := range vals {
		if v != nil {
			return true, true, nil
		}
	}
	return false, false, nil
}

// MarkExists records that token is taken.
func (c *ExistenceCache) MarkExists(ctx context.Context, token string) error {
	return c.cache.Set(ctx, ExistsKeyPrefix+token, []byte("1"), c.existsTTL)
}

// Forget removes the taken marker for token.
func (c *ExistenceCache) Forget(ctx context.Context, token string) error {
	return c.cache.Delete(ctx, ExistsKeyPrefix+token)
}

// Reserve claims token for the reservation TTL. It returns false when another
// writer holds the reservation. The TTL must outlive any pooled copy of token.
func (c *ExistenceCache) Reserve(ctx context.Context, token string) (bool, error) {
	return c.cache.SetNX(ctx, ReserveKeyPrefix+token, []byte("reserved"), c.reservationTTL)
}

// Release drops the reservation on token.
func (c *ExistenceCache) Release(ctx context.Context, token string) error {
	return c.cache.Delete(ctx, ReserveKeyPrefix+token)
}

// Ping checks the underlying cache.
func (c *ExistenceCache) Ping(ctx context.Context) error {
	return c.cache.Ping(ctx)
}
