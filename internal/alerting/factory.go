// Package alerting creates alerts from rule evaluation results and
// drives the batch pipeline over pending transactions.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fraudops/kestrel/internal/domain"
	"github.com/fraudops/kestrel/internal/rules"
	"github.com/fraudops/kestrel/internal/scoring"
)

// Factory builds and persists alerts. Insertion is conditional on the
// alert's transaction id: the store's uniqueness constraint guarantees
// at most one alert per transaction, so concurrent creators race safely
// and the loser simply observes "already exists".
type Factory struct {
	store  domain.Store
	scorer *scoring.Scorer
}

// NewFactory creates an alert factory.
func NewFactory(store domain.Store, scorer *scoring.Scorer) *Factory {
	return &Factory{store: store, scorer: scorer}
}

// Create builds an alert from an evaluation result and persists it.
// Returns (nil, nil) when no rule fired, and (nil, nil) when an alert
// for the transaction already exists — neither is an error.
func (f *Factory) Create(ctx context.Context, tx *domain.Transaction, result *rules.Result) (*domain.Alert, error) {
	if result == nil || len(result.Fired) == 0 {
		return nil, nil
	}

	riskScore, severity := f.scorer.Score(result.Fired)

	alert := &domain.Alert{
		ID:            domain.NewAlertID(),
		TransactionID: tx.ID,
		RuleTriggered: strings.Join(result.Fired, ", "),
		Severity:      severity,
		RiskScore:     riskScore,
		Status:        domain.StatusOpen,
		Notes:         strings.Join(result.Evidence, " | "),
		CreatedAt:     time.Now().UTC(),
	}

	created, err := f.store.InsertAlert(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("failed to insert alert for transaction %s: %w", tx.ID, err)
	}
	if !created {
		// Lost a race with another creator; the transaction is handled.
		return nil, nil
	}

	return alert, nil
}
