package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveUpstream("primary", OutcomeOK, 20*time.Millisecond)
	m.ObserveUpstream("primary", OutcomeOK, 10*time.Millisecond)
	m.ObserveUpstream("legacy", OutcomeError, time.Second)
	m.ObserveTicker(3, 2, 1, true, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("primary", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("legacy", OutcomeError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DatesFilled))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TickerFailures))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpstream("primary", OutcomeOK, time.Millisecond)
		m.ObserveTicker(1, 1, 0, false, time.Millisecond)
	})
}
