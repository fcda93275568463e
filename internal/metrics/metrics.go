// Package metrics holds the Prometheus collectors for ingestion.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Upstream call outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	DatesFilled      prometheus.Counter
	DatesSkipped     prometheus.Counter
	FetchFailures    prometheus.Counter
	TickerFailures   prometheus.Counter
	ReconcileSeconds prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finsite_upstream_requests_total",
			Help: "Upstream HTTP requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finsite_upstream_request_seconds",
			Help:    "Upstream request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		DatesFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finsite_dates_filled_total",
			Help: "Missing trade dates filled from upstream",
		}),
		DatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finsite_dates_skipped_total",
			Help: "Missing trade dates the upstream had no row for",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finsite_bucket_fetch_failures_total",
			Help: "Month buckets whose primary and legacy fetch both failed",
		}),
		TickerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finsite_ticker_failures_total",
			Help: "Tickers whose reconciliation ended with an error",
		}),
		ReconcileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finsite_reconcile_seconds",
			Help:    "Per-ticker reconciliation duration",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
	reg.MustRegister(
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.DatesFilled,
		m.DatesSkipped,
		m.FetchFailures,
		m.TickerFailures,
		m.ReconcileSeconds,
	)
	return m
}

// ObserveUpstream records one upstream call.
func (m *Metrics) ObserveUpstream(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveTicker records the outcome of one ticker's reconciliation.
func (m *Metrics) ObserveTicker(filled, skipped, fetchFailures int, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DatesFilled.Add(float64(filled))
	m.DatesSkipped.Add(float64(skipped))
	m.FetchFailures.Add(float64(fetchFailures))
	if failed {
		m.TickerFailures.Inc()
	}
	m.ReconcileSeconds.Observe(elapsed.Seconds())
}
