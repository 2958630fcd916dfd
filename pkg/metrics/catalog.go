package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/federation"
	"github.com/marmos91/dittocat/pkg/framework"
	"github.com/marmos91/dittocat/pkg/gc"
	"github.com/marmos91/dittocat/pkg/storage"
)

// CatalogMetrics is the single sink for every catalog-side observation.
// One instance is shared by the framework, its storage provider, the
// federation strategy and the content collector.
type CatalogMetrics interface {
	framework.Metrics
	federation.Metrics
	storage.Metrics
	gc.Metrics
}

// catalogMetrics is the Prometheus implementation of CatalogMetrics.
type catalogMetrics struct {
	operationsTotal     *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	processingDetails   *prometheus.CounterVec
	stagedBytes         prometheus.Counter
	sourceQueriesTotal  *prometheus.CounterVec
	sourceQueryDuration *prometheus.HistogramVec
	transactionsTotal   *prometheus.CounterVec
	gcRunsTotal         *prometheus.CounterVec
	gcPurged            *prometheus.CounterVec
	gcLastOrphaned      prometheus.Gauge
}

// NewCatalogMetrics creates a Prometheus-backed CatalogMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// leaves every component on its no-op.
//
// Every call returns the same collectors.
func NewCatalogMetrics() CatalogMetrics {
	m, ok := shared("catalog", newCatalogMetrics)
	if !ok {
		return nil
	}
	return m
}

func newCatalogMetrics(reg prometheus.Registerer) *catalogMetrics {
	durationBuckets := []float64{
		0.005, // 5ms
		0.025, // 25ms
		0.1,   // 100ms
		0.5,   // 500ms
		1.0,   // 1s
		5.0,   // 5s
		30.0,  // 30s
	}

	return &catalogMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocat_operations_total",
				Help: "Total number of catalog operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittocat_operation_duration_seconds",
				Help:    "Duration of catalog operations in seconds",
				Buckets: durationBuckets,
			},
			[]string{"operation"},
		),
		processingDetails: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocat_processing_details_total",
				Help: "Per-source failures reported in operation responses",
			},
			[]string{"operation"},
		),
		stagedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittocat_staged_bytes_total",
				Help: "Bytes staged for ingest",
			},
		),
		sourceQueriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocat_source_queries_total",
				Help: "Federated source queries by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		sourceQueryDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittocat_source_query_duration_seconds",
				Help:    "Duration of federated source queries in seconds",
				Buckets: durationBuckets,
			},
			[]string{"source"},
		),
		transactionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocat_storage_transactions_total",
				Help: "Finished storage transactions by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		gcRunsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocat_gc_runs_total",
				Help: "Content collection runs by status",
			},
			[]string{"status"},
		),
		gcPurged: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocat_gc_purged_total",
				Help: "Items purged by the content collector by kind",
			},
			[]string{"kind"}, // content, transaction, failed
		),
		gcLastOrphaned: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittocat_gc_last_orphaned",
				Help: "Orphaned content found by the last collection run",
			},
		),
	}
}

func (m *catalogMetrics) ObserveOperation(operation, outcome string, d time.Duration) {
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *catalogMetrics) ObserveProcessingDetails(operation string, n int) {
	if n > 0 {
		m.processingDetails.WithLabelValues(operation).Add(float64(n))
	}
}

func (m *catalogMetrics) ObserveStaged(bytes int64) {
	if bytes > 0 {
		m.stagedBytes.Add(float64(bytes))
	}
}

func (m *catalogMetrics) ObserveSourceQuery(sourceID, outcome string, d time.Duration) {
	m.sourceQueriesTotal.WithLabelValues(sourceID, outcome).Inc()
	m.sourceQueryDuration.WithLabelValues(sourceID).Observe(d.Seconds())
}

func (m *catalogMetrics) ObserveTransaction(operation catalog.OperationType, outcome string) {
	m.transactionsTotal.WithLabelValues(string(operation), outcome).Inc()
}

func (m *catalogMetrics) ObserveCollection(stats *gc.Stats, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.gcRunsTotal.WithLabelValues(status).Inc()
	if stats == nil {
		return
	}
	m.gcPurged.WithLabelValues("content").Add(float64(stats.DeletedCount))
	m.gcPurged.WithLabelValues("transaction").Add(float64(stats.PurgedTransactions))
	m.gcPurged.WithLabelValues("failed").Add(float64(stats.FailedCount))
	m.gcLastOrphaned.Set(float64(stats.OrphanedCount))
}
