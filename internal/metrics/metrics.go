// Package metrics counts what a run did and exposes it in the Prometheus
// text format. A run is a short-lived process, so instead of serving
// /metrics the collector is written to a node-exporter textfile.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes reported by leave_last_run_outcome
const (
	OutcomeSuccess        = "success"
	OutcomePartialFailure = "partial_failure"
	OutcomeAborted        = "aborted"
)

// Collector holds the metrics of a single run on its own registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry
	mu       sync.Mutex

	// EntriesDeleted counts removed entries per kind (file, directory, ...)
	EntriesDeleted *prometheus.CounterVec

	// EntriesSkipped counts entries left alone per reason (preserved, vanished)
	EntriesSkipped *prometheus.CounterVec

	// EntriesFailed counts per-entry failures per error kind
	EntriesFailed *prometheus.CounterVec

	// BytesFreed sums the size of removed entries, trees included
	BytesFreed prometheus.Counter

	// RunDuration tracks how long the run took
	RunDuration prometheus.Histogram

	// LastRunTimestamp records Unix timestamp of the run
	LastRunTimestamp prometheus.Gauge

	// LastRunOutcome is 1 for the outcome of the run and 0 otherwise
	LastRunOutcome *prometheus.GaugeVec
}

// New creates a Collector with all metrics registered
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		EntriesDeleted: NewCounterVec(
			"leave_entries_deleted_total",
			"Number of directory entries removed.",
			[]string{"kind"},
		),
		EntriesSkipped: NewCounterVec(
			"leave_entries_skipped_total",
			"Number of directory entries left in place.",
			[]string{"reason"},
		),
		EntriesFailed: NewCounterVec(
			"leave_entries_failed_total",
			"Number of directory entries that could not be removed.",
			[]string{"reason"},
		),
		BytesFreed: NewCounter(
			"leave_bytes_freed_total",
			"Total size of removed entries, including the contents of removed trees.",
		),
		RunDuration: NewDurationHistogram(
			"leave_run_duration_seconds",
			"Duration of the run in seconds.",
		),
		LastRunTimestamp: NewGauge(
			"leave_last_run_timestamp_seconds",
			"Timestamp of the last run (Unix epoch seconds).",
		),
		LastRunOutcome: NewGaugeVec(
			"leave_last_run_outcome",
			"Outcome of the last run (1 for the active outcome).",
			[]string{"outcome"},
		),
	}

	c.registry.MustRegister(
		c.EntriesDeleted,
		c.EntriesSkipped,
		c.EntriesFailed,
		c.BytesFreed,
		c.RunDuration,
		c.LastRunTimestamp,
		c.LastRunOutcome,
	)
	return c
}

// Registry returns the registry the metrics are registered with
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordDeleted counts a removed entry
func (c *Collector) RecordDeleted(kind string, size int64) {
	if c == nil {
		return
	}
	c.EntriesDeleted.WithLabelValues(kind).Inc()
	if size > 0 {
		c.BytesFreed.Add(float64(size))
	}
}

// RecordSkipped counts an entry left in place
func (c *Collector) RecordSkipped(reason string) {
	if c == nil {
		return
	}
	c.EntriesSkipped.WithLabelValues(reason).Inc()
}

// RecordFailed counts a per-entry failure
func (c *Collector) RecordFailed(reason string) {
	if c == nil {
		return
	}
	c.EntriesFailed.WithLabelValues(reason).Inc()
}

// RecordRun stores duration, timestamp and outcome of the run.
// Resets all outcome gauges to 0, then sets the given outcome to 1.
func (c *Collector) RecordRun(start time.Time, outcome string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.RunDuration.Observe(time.Since(start).Seconds())
	c.LastRunTimestamp.Set(float64(start.Unix()))
	c.LastRunOutcome.Reset()
	c.LastRunOutcome.WithLabelValues(outcome).Set(1)
}

// WriteTextfile atomically writes the metrics in the text exposition format
// for node-exporter's textfile collector
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
