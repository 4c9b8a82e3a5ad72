package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveExtraction(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveExtraction(SourceAPI, 2, 3*time.Millisecond)
	m.ObserveExtraction(SourceWorker, 0, time.Millisecond)
	m.ObserveExtractionError(SourceAPI, "invalid_input")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues(SourceAPI)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues(SourceWorker)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsFailed.WithLabelValues("invalid_input")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsExtracted))

	n, err := testutil.GatherAndCount(reg, "extraction_records")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestObserveExtraction_Dictation(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveExtraction(SourceDictation, 1, 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues(SourceDictation)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveExtraction(SourceAPI, 1, time.Millisecond)
		m.ObserveExtractionError(SourceAPI, "x")
		m.ObserveRequest("GET", "/health", 200, time.Millisecond)
		m.SetBreakerState("suggest", 1)
	})
}
