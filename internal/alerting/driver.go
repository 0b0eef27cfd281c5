package alerting

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fraudops/kestrel/internal/domain"
	"github.com/fraudops/kestrel/internal/metrics"
	"github.com/fraudops/kestrel/internal/rules"
)

// Driver runs the evaluation pipeline over every transaction that has
// no alert yet. Each transaction is an independent unit: a store
// failure on one is counted and skipped, never fatal to the batch, and
// the transaction stays unprocessed so the next run retries it.
type Driver struct {
	store     domain.Store
	evaluator *rules.Evaluator
	factory   *Factory
	bus       domain.EventBus
	collector *metrics.Collector
}

// NewDriver creates a batch driver. bus and collector may be nil.
func NewDriver(store domain.Store, evaluator *rules.Evaluator, factory *Factory, bus domain.EventBus, collector *metrics.Collector) *Driver {
	return &Driver{
		store:     store,
		evaluator: evaluator,
		factory:   factory,
		bus:       bus,
		collector: collector,
	}
}

// Report summarizes one batch run.
type Report struct {
	Processed       int `json:"processed"`
	AlertsGenerated int `json:"alertsGenerated"`
	Failed          int `json:"failed"`
}

// ProcessPending evaluates all transactions without an alert, newest
// first, optionally capped at limit (limit <= 0 means no cap). Because
// selection is an anti-join on transaction id, re-running over an
// unchanged transaction set is a no-op.
func (d *Driver) ProcessPending(ctx context.Context, limit int) (Report, error) {
	var report Report

	start := time.Now()
	if d.collector != nil {
		defer d.collector.ObserveBatch(start)
	}

	pending, err := d.store.ListUnalertedTransactions(ctx, limit)
	if err != nil {
		return report, err
	}

	slog.Info("processing pending transactions", "count", len(pending))

	for _, tx := range pending {
		report.Processed++

		result, err := d.evaluator.Evaluate(ctx, tx)
		if err != nil {
			// History store unavailable for this transaction: skip it.
			// It stays unalerted and is retried on the next run.
			slog.Warn("evaluation failed, skipping transaction",
				"transaction_id", tx.ID,
				"error", err,
			)
			report.Failed++
			if d.collector != nil {
				d.collector.StoreFailures.Inc()
			}
			continue
		}

		alert, err := d.factory.Create(ctx, tx, result)
		if err != nil {
			slog.Warn("alert creation failed, skipping transaction",
				"transaction_id", tx.ID,
				"error", err,
			)
			report.Failed++
			if d.collector != nil {
				d.collector.StoreFailures.Inc()
			}
			continue
		}
		if alert == nil {
			continue
		}

		report.AlertsGenerated++
		if d.collector != nil {
			d.collector.AlertsGenerated.WithLabelValues(alert.Severity).Inc()
			d.collector.RiskScores.Observe(alert.RiskScore)
		}
		d.publishAlert(ctx, alert)
	}

	slog.Info("batch complete",
		"processed", report.Processed,
		"alerts_generated", report.AlertsGenerated,
		"failed", report.Failed,
	)
	return report, nil
}

// publishAlert notifies downstream consumers of a new alert.
// Publish failures are logged, not propagated; the alert is persisted.
func (d *Driver) publishAlert(ctx context.Context, alert *domain.Alert) {
	if d.bus == nil {
		return
	}
	payload, _ := json.Marshal(alert)
	if err := d.bus.Publish(ctx, domain.TopicAlertCreated, payload); err != nil {
		slog.Error("failed to publish alert",
			"alert_id", alert.ID,
			"error", err,
		)
	}
}
