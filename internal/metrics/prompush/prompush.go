// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A load is a short-lived batch process, so metrics are
// pushed once at exit rather than exposed for scraping.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"gamestats/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	sectionCounter  *prometheus.CounterVec
	sectionDuration *prometheus.SummaryVec
	rowCounter      *prometheus.CounterVec
	loadCounter     *prometheus.CounterVec
}

// NewBackend constructs a Pushgateway backend. jobName defaults to
// "gamestats"; gatewayURL is required.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "gamestats"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		sectionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.SectionTotal,
			Help: "Section loads, partitioned by section and status.",
		}, []string{"section", "status"}),
		sectionDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.SectionDuration,
			Help:       "Duration of section loads in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"section", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows per destination table and kind (inserted, skipped_junk).",
		}, []string{"table", "kind"}),
		loadCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.LoadsTotal,
			Help: "Whole-file loads by status.",
		}, []string{"status"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"section counter": b.sectionCounter,
		"section summary": b.sectionDuration,
		"row counter":     b.rowCounter,
		"load counter":    b.loadCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

// IncCounter routes a counter to its collector. The "job" label is carried
// by the Pushgateway grouping key instead. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.SectionTotal:
		if b.sectionCounter != nil {
			b.sectionCounter.WithLabelValues(labels["section"], labels["status"]).Add(delta)
		}
	case metrics.RowsTotal:
		if b.rowCounter != nil {
			b.rowCounter.WithLabelValues(labels["table"], labels["kind"]).Add(delta)
		}
	case metrics.LoadsTotal:
		if b.loadCounter != nil {
			b.loadCounter.WithLabelValues(labels["status"]).Add(delta)
		}
	}
}

// ObserveHistogram records section durations; other names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.SectionDuration || b.sectionDuration == nil {
		return
	}
	b.sectionDuration.WithLabelValues(labels["section"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
