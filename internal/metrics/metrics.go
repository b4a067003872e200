// Package metrics bundles the Prometheus collectors for the service on a
// dedicated registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the orchestrator and verifier.
type Metrics struct {
	Registry *prometheus.Registry

	JobsTotal          *prometheus.CounterVec
	SubmitRetriesTotal prometheus.Counter
	PollAttempts       prometheus.Histogram
	ProviderDuration   *prometheus.HistogramVec

	VerifyResultsTotal *prometheus.CounterVec
	VerifyDuration     prometheus.Histogram
	VerifyChunkSize    prometheus.Gauge
	VerifyCacheHits    prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadpipe_jobs_total",
			Help: "Scrape jobs reaching a terminal state, by status.",
		},
		[]string{"status"},
	)
	submitRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leadpipe_submit_retries_total",
			Help: "Retry attempts while submitting runs to the scrape provider.",
		},
	)
	pollAttempts := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadpipe_poll_attempts",
			Help:    "Polling attempts needed per run before a terminal status.",
			Buckets: prometheus.LinearBuckets(1, 3, 10),
		},
	)
	providerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadpipe_provider_request_duration_seconds",
			Help:    "Latency of scrape provider calls by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	verifyResults := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadpipe_verify_results_total",
			Help: "Verification records produced, by normalized status.",
		},
		[]string{"status"},
	)
	verifyDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadpipe_verify_request_duration_seconds",
			Help:    "Latency of single verification provider calls.",
			Buckets: prometheus.DefBuckets,
		},
	)
	chunkSize := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadpipe_verify_chunk_size",
			Help: "Current adaptive chunk size of the batch verifier.",
		},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leadpipe_verify_cache_hits_total",
			Help: "Verifications answered from the verdict cache.",
		},
	)

	registry.MustRegister(jobs, submitRetries, pollAttempts, providerDuration,
		verifyResults, verifyDuration, chunkSize, cacheHits)

	return &Metrics{
		Registry:           registry,
		JobsTotal:          jobs,
		SubmitRetriesTotal: submitRetries,
		PollAttempts:       pollAttempts,
		ProviderDuration:   providerDuration,
		VerifyResultsTotal: verifyResults,
		VerifyDuration:     verifyDuration,
		VerifyChunkSize:    chunkSize,
		VerifyCacheHits:    cacheHits,
	}
}

// IncJob counts a job reaching a terminal status.
func (m *Metrics) IncJob(status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
}

// IncSubmitRetry counts one submission retry.
func (m *Metrics) IncSubmitRetry() {
	if m == nil {
		return
	}
	m.SubmitRetriesTotal.Inc()
}

// ObservePollAttempts records how many polls a run needed.
func (m *Metrics) ObservePollAttempts(n int) {
	if m == nil {
		return
	}
	m.PollAttempts.Observe(float64(n))
}

// ObserveProvider records the latency of one provider call.
func (m *Metrics) ObserveProvider(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderDuration.WithLabelValues(op).Observe(d.Seconds())
}

// IncVerifyResult counts one produced verification record.
func (m *Metrics) IncVerifyResult(status string) {
	if m == nil {
		return
	}
	m.VerifyResultsTotal.WithLabelValues(status).Inc()
}

// ObserveVerify records the latency of one verification call.
func (m *Metrics) ObserveVerify(d time.Duration) {
	if m == nil {
		return
	}
	m.VerifyDuration.Observe(d.Seconds())
}

// SetChunkSize publishes the verifier's current adaptive chunk size.
func (m *Metrics) SetChunkSize(n int) {
	if m == nil {
		return
	}
	m.VerifyChunkSize.Set(float64(n))
}

// IncCacheHit counts a verdict-cache hit.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.VerifyCacheHits.Inc()
}
