// Package metrics exposes Prometheus instrumentation for the alert
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline's metrics on a dedicated registry so the
// /metrics endpoint serves only what this service produces.
type Collector struct {
	registry *prometheus.Registry

	TransactionsIngested prometheus.Counter
	AlertsGenerated      *prometheus.CounterVec
	RiskScores           prometheus.Histogram
	BatchDuration        prometheus.Histogram
	StoreFailures        prometheus.Counter
}

// NewCollector creates a collector with all metrics registered.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		TransactionsIngested: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "kestrel_transactions_ingested_total",
			Help: "Total number of transactions accepted for monitoring",
		}),
		AlertsGenerated: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_alerts_generated_total",
			Help: "Total number of alerts created, by severity",
		}, []string{"severity"}),
		RiskScores: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_alert_risk_score_distribution",
			Help:    "Distribution of risk scores across generated alerts",
			Buckets: []float64{0, 20, 40, 60, 80, 100},
		}),
		BatchDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_batch_processing_duration_seconds",
			Help:    "Time taken to process a batch of pending transactions",
			Buckets: prometheus.DefBuckets,
		}),
		StoreFailures: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "kestrel_store_failures_total",
			Help: "Total number of transactions skipped due to store errors",
		}),
	}
}

// ObserveBatch records the duration of one batch run.
func (c *Collector) ObserveBatch(start time.Time) {
	c.BatchDuration.Observe(time.Since(start).Seconds())
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
