package service

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordAuthEvent("login", nil)
	m.RecordAuthEvent("login", errors.New("invalid credentials"))
	m.RecordAuthEvent("login", errors.New("invalid credentials"))
	m.RecordSyncDispatch(errors.New("broker down"))
	m.RecordSyncJob(nil)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.authEvents.WithLabelValues("login", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.authEvents.WithLabelValues("login", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncDispatch.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncJobs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordAuthEvent("register", nil)
		m.RecordSyncDispatch(nil)
		m.RecordSyncJob(nil)
		m.RecordCacheOperation(true, time.Millisecond)
		m.ObserveHTTPRequest("GET", "/health", 200, time.Millisecond)
	})
	assert.NotNil(t, m.Handler())
}
