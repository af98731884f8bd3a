package base

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Matatika/tap-shopify/pkg/metrics"
)

// ProgressReporter periodically logs record counts and throughput per
// stream.
type ProgressReporter struct {
	logger   *zap.Logger
	interval time.Duration

	mu        sync.Mutex
	trackers  map[string]*metrics.ThroughputTracker
	startTime time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewProgressReporter creates a new progress reporter. A zero interval
// disables periodic reports; the final summary is still logged.
func NewProgressReporter(logger *zap.Logger, interval time.Duration) *ProgressReporter {
	return &ProgressReporter{
		logger:    logger,
		interval:  interval,
		trackers:  make(map[string]*metrics.ThroughputTracker),
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
}

// Start begins periodic progress reporting
func (pr *ProgressReporter) Start() {
	if pr.interval <= 0 {
		return
	}
	pr.wg.Add(1)
	go func() {
		defer pr.wg.Done()
		ticker := time.NewTicker(pr.interval)
		defer ticker.Stop()

		for {
			select {
			case <-pr.stopCh:
				return
			case <-ticker.C:
				pr.reportCurrentProgress()
			}
		}
	}()
}

// Stop stops progress reporting and logs the final summary
func (pr *ProgressReporter) Stop() {
	close(pr.stopCh)
	pr.wg.Wait()
	pr.reportFinalProgress()
}

// IncrementProcessed adds count records to stream
func (pr *ProgressReporter) IncrementProcessed(stream string, count int64) {
	pr.tracker(stream).Increment(count)
}

// Totals returns the records processed per stream
func (pr *ProgressReporter) Totals() map[string]int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	totals := make(map[string]int64, len(pr.trackers))
	for name, t := range pr.trackers {
		totals[name] = t.Total()
	}
	return totals
}

func (pr *ProgressReporter) tracker(stream string) *metrics.ThroughputTracker {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	t, ok := pr.trackers[stream]
	if !ok {
		t = metrics.NewThroughputTracker(stream)
		pr.trackers[stream] = t
	}
	return t
}

func (pr *ProgressReporter) streams() []string {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	names := make([]string, 0, len(pr.trackers))
	for name := range pr.trackers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// reportCurrentProgress logs current progress
func (pr *ProgressReporter) reportCurrentProgress() {
	for _, name := range pr.streams() {
		t := pr.tracker(name)
		pr.logger.Info("progress update",
			zap.String("stream", name),
			zap.Int64("processed", t.Total()),
			zap.Float64("throughput", t.GetAndReset()),
			zap.Duration("elapsed", time.Since(pr.startTime)))
	}
}

// reportFinalProgress logs final progress summary
func (pr *ProgressReporter) reportFinalProgress() {
	totals := pr.Totals()
	elapsed := time.Since(pr.startTime)

	var processed int64
	for _, n := range totals {
		processed += n
	}

	var avg float64
	if elapsed > 0 {
		avg = float64(processed) / elapsed.Seconds()
	}

	pr.logger.Info("processing completed",
		zap.Int64("total_processed", processed),
		zap.Any("records", totals),
		zap.Duration("total_time", elapsed),
		zap.Float64("avg_throughput", avg))
}
