package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	initOnce sync.Once

	// Registry holds every emptysweep metric. It is separate from the default
	// registry so textfile output carries no go_/process_ series that would
	// collide with the node_exporter's own.
	Registry = prometheus.NewRegistry()
)

// Init initializes all metrics and registers them with Registry
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initSweepMetrics()
		registerSweepMetrics()

		// Initialize with default values so they appear in output immediately
		LastRunTimestamp.Set(0)
		LastRunSuccess.Set(0)
	})
}

// WriteTextfile writes the current metric values in the Prometheus text
// format, atomically, for the node_exporter textfile collector
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Push sends the current metric values to a Prometheus Pushgateway
func Push(url, job string) error {
	if err := push.New(url, job).Gatherer(Registry).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
