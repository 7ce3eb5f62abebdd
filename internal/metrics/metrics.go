// Package metrics exposes Prometheus metrics for scrape runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

const (
	// MetricsNamespace is the namespace for all scraper metrics.
	MetricsNamespace = "progress_scraper"

	// MetricsSubsystem is the subsystem for traversal metrics.
	MetricsSubsystem = "scrape"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Metrics holds the scraper's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	// Traversal metrics
	PagesVisitedTotal  prometheus.Counter
	EntitiesTotal      *prometheus.CounterVec
	SkippedTotal       *prometheus.CounterVec
	ContentTotal       *prometheus.CounterVec
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds prometheus.Histogram
	RunInProgress      prometheus.Gauge

	// Persistence metrics
	UpsertRowsTotal       *prometheus.CounterVec
	UpsertDurationSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers all scraper metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initTraversalMetrics(factory)
	m.initPersistenceMetrics(factory)

	return m
}

func (m *Metrics) initTraversalMetrics(factory promauto.Factory) {
	m.PagesVisitedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "listing_pages_total",
		Help:      "Total number of listing pages extracted",
	})

	m.EntitiesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "entities_total",
			Help:      "Total number of entities extracted",
		},
		[]string{"entity"},
	)

	m.SkippedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "skipped_total",
			Help:      "Total number of items skipped after a recoverable failure",
		},
		[]string{"entity", "kind"},
	)

	m.ContentTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "contents_total",
			Help:      "Total number of step contents captured",
		},
		[]string{"type"},
	)

	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "runs_total",
			Help:      "Total number of scrape runs by outcome",
		},
		[]string{"status"},
	)

	m.RunDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "run_duration_seconds",
		Help:      "Duration of scrape runs",
		Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
	})

	m.RunInProgress = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "run_in_progress",
		Help:      "1 while a scrape run is executing",
	})
}

func (m *Metrics) initPersistenceMetrics(factory promauto.Factory) {
	m.UpsertRowsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "db",
			Name:      "upsert_rows_total",
			Help:      "Total number of rows inserted or updated",
		},
		[]string{"entity"},
	)

	m.UpsertDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "db",
			Name:      "upsert_duration_seconds",
			Help:      "Duration of one entity batch upsert",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"entity"},
	)
}

// RecordPage records one extracted listing page.
func (m *Metrics) RecordPage() {
	if m == nil {
		return
	}
	m.PagesVisitedTotal.Inc()
}

// RecordEntities records n extracted entities of a type.
func (m *Metrics) RecordEntities(entity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EntitiesTotal.WithLabelValues(entity).Add(float64(n))
}

// RecordSkip records an item dropped after a recoverable failure.
func (m *Metrics) RecordSkip(entity, kind string) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(entity, kind).Inc()
}

// RecordContent records a captured content payload.
func (m *Metrics) RecordContent(contentType string) {
	if m == nil {
		return
	}
	m.ContentTotal.WithLabelValues(contentType).Inc()
}

// RecordRunStarted marks a run as executing.
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.RunInProgress.Set(1)
}

// RecordRunFinished records a run outcome and its duration.
func (m *Metrics) RecordRunFinished(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RunInProgress.Set(0)
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.Observe(duration.Seconds())
}

// RecordUpsert records one entity batch.
func (m *Metrics) RecordUpsert(entity string, rows int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.UpsertRowsTotal.WithLabelValues(entity).Add(float64(rows))
	m.UpsertDurationSeconds.WithLabelValues(entity).Observe(duration.Seconds())
}

// Serve exposes gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Metrics listener started", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		return nil
	}
}
