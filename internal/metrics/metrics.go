package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects run counters in its own registry. A nil Recorder drops
// everything, so callers never need to check.
type Recorder struct {
	registry *prometheus.Registry

	recordsTotal     *prometheus.CounterVec
	attemptsTotal    *prometheus.CounterVec
	retryWaitSeconds prometheus.Counter
	recordDuration   prometheus.Histogram
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vqaset_records_total",
				Help: "Records handled per stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vqaset_generation_attempts_total",
				Help: "Provider calls by result",
			},
			[]string{"result"},
		),
		retryWaitSeconds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vqaset_retry_wait_seconds_total",
				Help: "Time spent waiting between retry attempts",
			},
		),
		recordDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vqaset_record_duration_seconds",
				Help:    "Time taken to generate questions for one record",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
	}

	r.registry.MustRegister(
		r.recordsTotal,
		r.attemptsTotal,
		r.retryWaitSeconds,
		r.recordDuration,
	)
	return r
}

// Records adds n records with the given stage and outcome
func (r *Recorder) Records(stage, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.recordsTotal.WithLabelValues(stage, outcome).Add(float64(n))
}

func (r *Recorder) Attempt(result string) {
	if r == nil {
		return
	}
	r.attemptsTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) RetryWait(d time.Duration) {
	if r == nil {
		return
	}
	r.retryWaitSeconds.Add(d.Seconds())
}

func (r *Recorder) RecordDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.recordDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current values in the node_exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
