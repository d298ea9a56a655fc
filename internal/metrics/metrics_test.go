package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	handler := Handler()
	require.NotNil(t, handler)

	RecordCollision()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shortcode_collisions_total")
}

func TestRecordRequest(t *testing.T) {
	// This should not panic
	RecordRequest("GET", "/health", 200, 100*time.Millisecond)
	RecordRequest("POST", "/v1/codes", 201, 50*time.Millisecond)
	RecordRequest("GET", "/nonexistent", 404, 10*time.Millisecond)
}

func TestRecordIssued(t *testing.T) {
	before := testutil.ToFloat64(CodesIssuedTotal.WithLabelValues("pool"))
	RecordIssued("pool")
	assert.Equal(t, before+1, testutil.ToFloat64(CodesIssuedTotal.WithLabelValues("pool")))
}

func TestRecordCollision(t *testing.T) {
	before := testutil.ToFloat64(CollisionsTotal)
	RecordCollision()
	RecordCollision()
	assert.Equal(t, before+2, testutil.ToFloat64(CollisionsTotal))
}

func TestRecordPoolRequest(t *testing.T) {
	hits := testutil.ToFloat64(PoolRequestsTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(PoolRequestsTotal.WithLabelValues("miss"))

	RecordPoolRequest(true)
	RecordPoolRequest(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(PoolRequestsTotal.WithLabelValues("hit")))
	assert.Equal(t, misses+1, testutil.ToFloat64(PoolRequestsTotal.WithLabelValues("miss")))
}

func TestRecordPoolRefill(t *testing.T) {
	ok := testutil.ToFloat64(PoolRefillsTotal.WithLabelValues("ok"))
	failed := testutil.ToFloat64(PoolRefillsTotal.WithLabelValues("error"))

	RecordPoolRefill(nil)
	RecordPoolRefill(errors.New("store down"))

	assert.Equal(t, ok+1, testutil.ToFloat64(PoolRefillsTotal.WithLabelValues("ok")))
	assert.Equal(t, failed+1, testutil.ToFloat64(PoolRefillsTotal.WithLabelValues("error")))
}

func TestGauges(t *testing.T) {
	SetPoolSize(42)
	SetCollisionRate(0.25)
	SetSequenceCurrent(1_000_000)

	assert.Equal(t, 42.0, testutil.ToFloat64(PoolSize))
	assert.Equal(t, 0.25, testutil.ToFloat64(CollisionRate))
	assert.Equal(t, 1_000_000.0, testutil.ToFloat64(SequenceCurrent))
}

func TestRecordMisc(t *testing.T) {
	// This should not panic
	RecordReservedRejection()
	RecordExhausted()
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheError()
	RecordDBQuery("exists", 5*time.Millisecond)
	RecordAllocation("ok", time.Millisecond)
	RecordAlert()
}

func TestSetDBConnections(t *testing.T) {
	SetDBConnections(3, 4, 6, 10, 25)

	assert.Equal(t, float64(4), testutil.ToFloat64(DBConnections.WithLabelValues("3", "acquired")))
	assert.Equal(t, float64(6), testutil.ToFloat64(DBConnections.WithLabelValues("3", "idle")))
	assert.Equal(t, float64(10), testutil.ToFloat64(DBConnections.WithLabelValues("3", "total")))
	assert.Equal(t, float64(25), testutil.ToFloat64(DBConnections.WithLabelValues("3", "max")))
}
