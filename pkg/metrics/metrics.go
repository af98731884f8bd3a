// Package metrics exposes Prometheus metrics for the tap.
//
// # Basic Usage
//
//	// Count an emitted record
//	metrics.RecordsExtracted.WithLabelValues("orders").Inc()
//
//	// Track request latency
//	timer := metrics.NewTimer()
//	resp, err := client.Do(req)
//	metrics.RequestLatency.WithLabelValues("orders").Observe(timer.Stop().Seconds())
//
//	// Track throughput
//	tracker := metrics.NewThroughputTracker("orders")
//	tracker.Increment(1)
//	rps := tracker.GetAndReset()
//
// Metrics are only served when a metrics address is configured; see Serve.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tap_shopify"

var (
	// RecordsExtracted counts RECORD messages written.
	// Labels: stream
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Total number of records emitted",
		},
		[]string{"stream"},
	)

	// RecordsDeduplicated counts rows dropped by duplicate suppression.
	// Labels: stream, reason (last_id, bookmark)
	RecordsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_deduplicated_total",
			Help:      "Total number of rows dropped as duplicates",
		},
		[]string{"stream", "reason"},
	)

	// ValidationFailures counts records that did not match their schema.
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Total number of records failing schema validation",
		},
		[]string{"stream"},
	)

	// PagesFetched counts API pages read.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of API pages fetched",
		},
		[]string{"stream"},
	)

	// HTTPRequests counts HTTP requests by response status.
	// Labels: stream, status (HTTP code or "error")
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"stream", "status"},
	)

	// HTTPRetries counts retried requests.
	HTTPRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "Total number of retried HTTP requests",
		},
		[]string{"stream"},
	)

	// RequestLatency tracks the distribution of request latencies in seconds.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stream"},
	)

	// CircuitBreakerState reports 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	// Throughput tracks records per second.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_records_per_second",
			Help:      "Current throughput in records per second",
		},
		[]string{"stream"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Records since last reset
	total     int64     // Records since creation
	lastReset time.Time // Time of last reset
	stream    string
}

// NewThroughputTracker creates a new throughput tracker for a stream.
func NewThroughputTracker(stream string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		stream:    stream,
	}
}

// Increment adds n to the record count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
	t.total += n
}

// Total returns the number of records counted since creation.
func (t *ThroughputTracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// GetAndReset calculates the current throughput (records/second),
// updates the Prometheus metric, resets the window, and returns
// the calculated throughput. Safe for concurrent use.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.stream).Set(throughput)

	return throughput
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
