package dictation

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/rx-dictation/internal/extraction"
	"github.com/drfirst/rx-dictation/internal/observability/metrics"
)

func newTestService(t *testing.T, names ...string) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	s, err := NewService(names, extraction.DefaultConfig(), m, nil)
	require.NoError(t, err)
	return s, m
}

func TestService_Extract(t *testing.T) {
	s, m := newTestService(t, "Paracetamol", "Ibuprofen")

	got, err := s.Extract(context.Background(), "Paracetamol for three days two tablets after meal")
	require.NoError(t, err)
	assert.Equal(t, []extraction.PrescriptionRecord{
		{MedicineName: "Paracetamol", NumberOfDays: 3, DosagePerDay: 2, MealTime: extraction.AfterMeal},
	}, got)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues(metrics.SourceAPI)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsExtracted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VocabularySize))
}

func TestService_ExtractFailure(t *testing.T) {
	s, m := newTestService(t, "Paracetamol")

	got, err := s.ExtractFrom(context.Background(), metrics.SourceWorker, "Paracetamol \xff")
	assert.ErrorIs(t, err, extraction.ErrExtractionFailed)
	assert.Nil(t, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsFailed.WithLabelValues("invalid_input")))
}

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	_, err := NewService(nil, extraction.Config{Threshold: 120, TopK: 5}, nil, nil)
	assert.ErrorIs(t, err, extraction.ErrInvalidConfiguration)
}

func TestService_ReloadWhileExtracting(t *testing.T) {
	s, _ := newTestService(t, "Paracetamol")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				recs, err := s.Extract(context.Background(), "Ibuprofen two tablets")
				assert.NoError(t, err)
				assert.LessOrEqual(t, len(recs), 1)
			}
		}()
	}
	s.Reload([]string{"Ibuprofen"})
	wg.Wait()

	assert.Equal(t, 1, s.VocabularySize())
	recs, err := s.Extract(context.Background(), "Ibuprofen two tablets")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].DosagePerDay)
}

func TestService_Analyze(t *testing.T) {
	s, _ := newTestService(t, "Paracetamol", "Ibuprofen")

	a, err := s.Analyze(context.Background(), "Paracetamol and Ibuprofen both for two days")
	require.NoError(t, err)
	assert.Len(t, a.Candidates, 2)
	assert.Equal(t, []extraction.Span{{Start: 0, End: 16}, {Start: 16, End: 43}}, a.Spans)
}
