package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamestats/internal/metrics"
)

// readCounterValue reads the current value of a Counter.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	require.NotNil(t, m.GetCounter())
	return m.GetCounter().GetValue()
}

func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()
	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	require.True(t, ok)
	require.NoError(t, metric.Write(m))
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	_, err := NewBackend("x", "")
	assert.Error(t, err)

	b, err := NewBackend("", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "gamestats", b.jobName)

	b, err = NewBackend("nightly", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "nightly", b.jobName)
}

func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("gamestats", "http://example.com")
	require.NoError(t, err)

	b.IncCounter(metrics.SectionTotal, 1, metrics.Labels{"section": "MATCH OVERVIEW", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"table": "performance", "kind": "inserted"})
	b.IncCounter(metrics.RowsTotal, 2, metrics.Labels{"table": "performance", "kind": "inserted"})
	b.IncCounter(metrics.LoadsTotal, 1, metrics.Labels{"status": "failure"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	assert.Equal(t, 1.0, readCounterValue(t, b.sectionCounter.WithLabelValues("MATCH OVERVIEW", "success")))
	assert.Equal(t, 7.0, readCounterValue(t, b.rowCounter.WithLabelValues("performance", "inserted")))
	assert.Equal(t, 1.0, readCounterValue(t, b.loadCounter.WithLabelValues("failure")))
	assert.Equal(t, 0.0, readCounterValue(t, b.loadCounter.WithLabelValues("success")))
}

func TestIncCounterNilCollectors(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.SectionTotal, 1, metrics.Labels{})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{})
	b.IncCounter(metrics.LoadsTotal, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.SectionDuration, 1, metrics.Labels{})
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("gamestats", "http://example.com")
	require.NoError(t, err)

	lbls := metrics.Labels{"section": "PLAYER ROUNDS DATA", "status": "success"}
	b.ObserveHistogram(metrics.SectionDuration, 1.5, lbls)
	b.ObserveHistogram("other_metric", 2.0, lbls)

	count, sum := readSummaryCountSum(t, b.sectionDuration, "PLAYER ROUNDS DATA", "success")
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 1.5, sum)
}

// TestFlush verifies that Flush sends the registry to the Pushgateway.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method, path string
		bodyLen      int
	}
	reqCh := make(chan pushed, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushed{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("gamestats", server.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.LoadsTotal, 1, metrics.Labels{"status": "success"})
	require.NoError(t, b.Flush())

	select {
	case got := <-reqCh:
		assert.Equal(t, http.MethodPut, got.method)
		assert.Equal(t, "/metrics/job/gamestats", got.path)
		assert.Positive(t, got.bodyLen)
	default:
		t.Fatal("Flush did not reach the Pushgateway")
	}
}
