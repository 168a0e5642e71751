// Package metrics is a small facade over a pluggable metrics backend.
//
// The pipeline only ever talks to this package; backends (Datadog, nop) are
// selected once at process start. The default backend discards everything,
// so library code can emit metrics unconditionally.
package metrics

import "sync"

// Labels attach dimensions to a metric point.
type Labels map[string]string

// Backend is the minimal sink interface.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names emitted by the pipeline.
const (
	MetricFilesTotal    = "maps_files_total"    // labels: status, admin_level
	MetricFeaturesTotal = "maps_features_total" // labels: admin_level
	MetricStageDuration = "maps_stage_duration_seconds"
)

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// IncCounter adds delta to a counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error {
	return current().Flush()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }
