package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep metrics
var (
	// RemovedTotal counts removals by object type (file, empty_directory)
	// and action (DELETE, DRY_RUN)
	RemovedTotal *prometheus.CounterVec

	// ExcludedTotal counts paths skipped by the exclusion filter
	ExcludedTotal prometheus.Counter

	// SafetySkipsTotal counts targets rejected by the safety validator
	SafetySkipsTotal *prometheus.CounterVec

	// ErrorsTotal counts filesystem errors that aborted a run
	ErrorsTotal prometheus.Counter

	// DirectoriesVisitedTotal counts directories processed by the walker
	DirectoriesVisitedTotal prometheus.Counter

	// EntriesScannedTotal counts directory entries enumerated by the walker
	EntriesScannedTotal prometheus.Counter

	// RunDuration tracks how long a sweep takes
	RunDuration prometheus.Histogram

	// LastRunTimestamp records Unix timestamp of the last completed sweep
	LastRunTimestamp prometheus.Gauge

	// LastRunSuccess is 1 when the last sweep completed, 0 when it failed
	LastRunSuccess prometheus.Gauge
)

func initSweepMetrics() {
	RemovedTotal = NewCounterVec(
		"emptysweep_removed_total",
		"Total empty files and directories removed.",
		[]string{"object", "action"},
	)

	ExcludedTotal = NewCounter(
		"emptysweep_excluded_skipped_total",
		"Total paths skipped because they matched the exclusion set.",
	)

	SafetySkipsTotal = NewCounterVec(
		"emptysweep_safety_skipped_total",
		"Total removal targets rejected by the safety validator.",
		[]string{"reason"},
	)

	ErrorsTotal = NewCounter(
		"emptysweep_errors_total",
		"Total filesystem errors that aborted a sweep.",
	)

	DirectoriesVisitedTotal = NewCounter(
		"emptysweep_directories_visited_total",
		"Total directories visited by the bottom-up walk.",
	)

	EntriesScannedTotal = NewCounter(
		"emptysweep_entries_scanned_total",
		"Total directory entries enumerated by the walk.",
	)

	RunDuration = NewDurationHistogram(
		"emptysweep_run_duration_seconds",
		"Duration of sweeps in seconds.",
	)

	LastRunTimestamp = NewGauge(
		"emptysweep_last_run_timestamp",
		"Timestamp of the last sweep (Unix epoch seconds).",
	)

	LastRunSuccess = NewGauge(
		"emptysweep_last_run_success",
		"Whether the last sweep completed (1) or failed (0).",
	)
}

func registerSweepMetrics() {
	Registry.MustRegister(RemovedTotal)
	Registry.MustRegister(ExcludedTotal)
	Registry.MustRegister(SafetySkipsTotal)
	Registry.MustRegister(ErrorsTotal)
	Registry.MustRegister(DirectoriesVisitedTotal)
	Registry.MustRegister(EntriesScannedTotal)
	Registry.MustRegister(RunDuration)
	Registry.MustRegister(LastRunTimestamp)
	Registry.MustRegister(LastRunSuccess)
}

// RecordRemoval counts one removed (or would-be-removed) object
func RecordRemoval(objectType, action string) {
	RemovedTotal.WithLabelValues(objectType, action).Inc()
}

// RecordVisit counts a visited directory and its enumerated entries
func RecordVisit(entries int) {
	DirectoriesVisitedTotal.Inc()
	EntriesScannedTotal.Add(float64(entries))
}

// RecordSafetySkip counts a target the validator refused
func RecordSafetySkip(reason string) {
	SafetySkipsTotal.WithLabelValues(reason).Inc()
}

// RecordRun records duration, timestamp and outcome of a finished sweep
func RecordRun(start time.Time, err error) {
	RunDuration.Observe(time.Since(start).Seconds())
	LastRunTimestamp.Set(float64(time.Now().Unix()))
	if err != nil {
		ErrorsTotal.Inc()
		LastRunSuccess.Set(0)
		return
	}
	LastRunSuccess.Set(1)
}
