// Package metrics records operational metrics from gamestats loads behind a
// small, backend-agnostic interface.
//
// A process-wide backend defaults to a no-op, so instrumentation is always
// safe to call. The command installs a concrete backend (Pushgateway or
// DogStatsD) from configuration and flushes it before exiting. Concrete
// metric systems live in subpackages so the loader never imports them.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the helpers below.
const (
	SectionTotal    = "gamestats_section_total"
	SectionDuration = "gamestats_section_duration_seconds"
	RowsTotal       = "gamestats_rows_total"
	LoadsTotal      = "gamestats_loads_total"
)

// Row kinds counted under RowsTotal.
const (
	RowInserted    = "inserted"
	RowSkippedJunk = "skipped_junk"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error { return current().Flush() }

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordSection counts one section load and its duration.
func RecordSection(job, section string, err error, d time.Duration) {
	lbls := Labels{"job": job, "section": section, "status": status(err)}
	b := current()
	b.IncCounter(SectionTotal, 1, lbls)
	b.ObserveHistogram(SectionDuration, d.Seconds(), lbls)
}

// RecordRows adds delta rows of kind for table. Non-positive deltas are
// dropped.
func RecordRows(job, table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
		"kind":  kind,
	})
}

// RecordLoad counts one whole-file load.
func RecordLoad(job string, err error) {
	current().IncCounter(LoadsTotal, 1, Labels{"job": job, "status": status(err)})
}
