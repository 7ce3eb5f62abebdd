package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/metrics"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics(prometheus.NewRegistry())

	m.RecordPage()
	m.RecordPage()
	m.RecordEntities("path", 3)
	m.RecordEntities("path", 0)
	m.RecordSkip("training", "extraction")
	m.RecordContent("text")
	m.RecordUpsert("step", 12, 20*time.Millisecond)
	m.RecordRunStarted()
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RunInProgress), 0)
	m.RecordRunFinished("complete", time.Minute)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.PagesVisitedTotal), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(m.EntitiesTotal.WithLabelValues("path")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.SkippedTotal.WithLabelValues("training", "extraction")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ContentTotal.WithLabelValues("text")), 0)
	assert.InDelta(t, 12.0, testutil.ToFloat64(m.UpsertRowsTotal.WithLabelValues("step")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("complete")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.RunInProgress), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.RecordPage()
		m.RecordEntities("path", 1)
		m.RecordSkip("step", "timeout")
		m.RecordContent("video")
		m.RecordUpsert("path", 1, time.Second)
		m.RecordRunStarted()
		m.RecordRunFinished("failed", time.Second)
	})
}
