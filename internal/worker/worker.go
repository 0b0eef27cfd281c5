// Package worker provides async transaction evaluation off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fraudops/kestrel/internal/alerting"
	"github.com/fraudops/kestrel/internal/domain"
	"github.com/fraudops/kestrel/internal/metrics"
	"github.com/fraudops/kestrel/internal/rules"
)

// Worker evaluates ingested transactions as they arrive on the bus.
// It is a low-latency complement to the batch driver: the anti-join in
// the batch path still catches anything the worker misses, and the
// conditional alert insert keeps the two paths from double-alerting.
type Worker struct {
	bus       domain.EventBus
	evaluator *rules.Evaluator
	factory   *alerting.Factory
	collector *metrics.Collector

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker. collector may be nil.
func NewWorker(bus domain.EventBus, evaluator *rules.Evaluator, factory *alerting.Factory, collector *metrics.Collector) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		evaluator: evaluator,
		factory:   factory,
		collector: collector,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the transaction-ingested topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicTransactionIngested,
	)
	return nil
}

// handleMessage evaluates one ingested transaction.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("processing transaction",
		"transaction_id", tx.ID,
		"customer_id", tx.CustomerID,
	)

	result, err := w.evaluator.Evaluate(ctx, &tx)
	if err != nil {
		slog.Error("rule evaluation failed",
			"transaction_id", tx.ID,
			"error", err,
		)
		return err
	}

	alert, err := w.factory.Create(ctx, &tx, result)
	if err != nil {
		slog.Error("alert creation failed",
			"transaction_id", tx.ID,
			"error", err,
		)
		return err
	}

	if alert != nil {
		if w.collector != nil {
			w.collector.AlertsGenerated.WithLabelValues(alert.Severity).Inc()
			w.collector.RiskScores.Observe(alert.RiskScore)
		}

		payload, _ := json.Marshal(alert)
		if err := w.bus.Publish(ctx, domain.TopicAlertCreated, payload); err != nil {
			slog.Error("failed to publish alert",
				"alert_id", alert.ID,
				"error", err,
			)
		}

		slog.Info("alert raised",
			"transaction_id", tx.ID,
			"alert_id", alert.ID,
			"severity", alert.Severity,
			"risk_score", alert.RiskScore,
			"rules", alert.RuleTriggered,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
