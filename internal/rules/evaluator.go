package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fraudops/kestrel/internal/domain"
)

// HistoryReader is the windowed view of transaction history the rules
// consult. Each call is a single consistent snapshot read.
type HistoryReader interface {
	// CountTransactions counts a customer's transactions in [start, end],
	// both bounds inclusive, excluding excludeID.
	CountTransactions(ctx context.Context, customerID string, start, end time.Time, excludeID string) (int, error)

	// TransactionsInWindow returns a customer's transactions in
	// [start, end) — end exclusive — excluding excludeID.
	TransactionsInWindow(ctx context.Context, customerID string, start, end time.Time, excludeID string) ([]*domain.Transaction, error)

	// DistinctCustomersForDevice counts distinct customers that used a
	// device in [start, end], both bounds inclusive.
	DistinctCustomersForDevice(ctx context.Context, deviceID string, start, end time.Time) (int, error)
}

// Result holds the outcome of evaluating one transaction: the names of
// the rules that fired, in evaluation order, and the parallel evidence.
type Result struct {
	Fired    []string
	Evidence []string
}

// Evaluator runs every enabled rule against a transaction. The
// configuration is captured at construction and never mutated; a
// single Evaluator is safe for concurrent use.
type Evaluator struct {
	cfg     *domain.EngineConfig
	history HistoryReader
	custom  []*compiledCustomRule

	// mccSet is the SUSPICIOUS_MERCHANT membership set, built once.
	mccSet map[string]struct{}
}

// NewEvaluator builds an evaluator from an immutable configuration.
// Custom CEL rules are compiled here; a compile failure is a
// configuration error and fails construction.
func NewEvaluator(cfg *domain.EngineConfig, history HistoryReader) (*Evaluator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine config is required")
	}

	mccSet := make(map[string]struct{}, len(cfg.Rules.SuspiciousMerchant.HighRiskMCCs))
	for _, mcc := range cfg.Rules.SuspiciousMerchant.HighRiskMCCs {
		mccSet[mcc] = struct{}{}
	}

	custom, err := compileCustomRules(cfg.CustomRules)
	if err != nil {
		return nil, err
	}

	return &Evaluator{
		cfg:     cfg,
		history: history,
		custom:  custom,
		mccSet:  mccSet,
	}, nil
}

// Evaluate runs all enabled rules against a transaction and returns the
// fired rule names with their evidence strings. A disabled rule never
// fires and is skipped without consulting the store. A failed history
// read aborts the evaluation; the caller decides whether to retry.
func (e *Evaluator) Evaluate(ctx context.Context, tx *domain.Transaction) (*Result, error) {
	res := &Result{}

	for _, kind := range EvaluationOrder {
		fired, evidence, err := e.check(ctx, kind, tx)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", kind, err)
		}
		if fired {
			res.Fired = append(res.Fired, string(kind))
			res.Evidence = append(res.Evidence, evidence)
		}
	}

	for _, cr := range e.custom {
		fired, err := cr.eval(tx)
		if err != nil {
			return nil, fmt.Errorf("custom rule %s: %w", cr.name, err)
		}
		if fired {
			res.Fired = append(res.Fired, cr.name)
			res.Evidence = append(res.Evidence, cr.reason)
		}
	}

	return res, nil
}

func (e *Evaluator) check(ctx context.Context, kind Kind, tx *domain.Transaction) (bool, string, error) {
	switch kind {
	case KindHighAmount:
		return e.checkHighAmount(tx)
	case KindVelocity:
		return e.checkVelocity(ctx, tx)
	case KindGeoJump:
		return e.checkGeoJump(ctx, tx)
	case KindDeviceSharing:
		return e.checkDeviceSharing(ctx, tx)
	case KindUnusualTime:
		return e.checkUnusualTime(tx)
	case KindSuspiciousMerchant:
		return e.checkSuspiciousMerchant(tx)
	default:
		return false, "", fmt.Errorf("unknown rule kind %q", kind)
	}
}

// checkHighAmount fires when the amount exceeds the threshold.
// Pure function of the transaction; no history lookup.
func (e *Evaluator) checkHighAmount(tx *domain.Transaction) (bool, string, error) {
	cfg := e.cfg.Rules.HighAmount
	if !cfg.Enabled {
		return false, "", nil
	}
	if tx.Amount > cfg.Threshold {
		return true, fmt.Sprintf("Amount $%s exceeds threshold $%s",
			formatAmount(tx.Amount), formatAmount(cfg.Threshold)), nil
	}
	return false, "", nil
}

// checkVelocity fires when the customer made at least threshold other
// transactions in [t-window, t], both bounds inclusive. The transaction
// under evaluation is excluded from its own count.
func (e *Evaluator) checkVelocity(ctx context.Context, tx *domain.Transaction) (bool, string, error) {
	cfg := e.cfg.Rules.Velocity
	if !cfg.Enabled {
		return false, "", nil
	}

	window := time.Duration(cfg.WindowMinutes) * time.Minute
	start := tx.Timestamp.Add(-window)

	count, err := e.history.CountTransactions(ctx, tx.CustomerID, start, tx.Timestamp, tx.ID)
	if err != nil {
		return false, "", err
	}

	if count >= cfg.Threshold {
		return true, fmt.Sprintf("Customer made %d transactions in the last %s",
			count+1, formatWindow(window)), nil
	}
	return false, "", nil
}

// checkGeoJump fires when any of the customer's transactions in
// [t-window, t) — strictly before t — occurred in a different
// (city, country) pair. The first mismatching prior transaction wins;
// there is no travel-speed computation.
func (e *Evaluator) checkGeoJump(ctx context.Context, tx *domain.Transaction) (bool, string, error) {
	cfg := e.cfg.Rules.GeoJump
	if !cfg.Enabled {
		return false, "", nil
	}

	window := time.Duration(cfg.WindowMinutes) * time.Minute
	start := tx.Timestamp.Add(-window)

	recent, err := e.history.TransactionsInWindow(ctx, tx.CustomerID, start, tx.Timestamp, tx.ID)
	if err != nil {
		return false, "", err
	}

	for _, prior := range recent {
		if prior.City != tx.City || prior.Country != tx.Country {
			return true, fmt.Sprintf("Location jump from %s, %s to %s, %s within %.1f hours",
				prior.City, prior.Country, tx.City, tx.Country, window.Hours()), nil
		}
	}
	return false, "", nil
}

// checkDeviceSharing fires when at least threshold distinct customers
// used this device in [t-window, t], both bounds inclusive.
func (e *Evaluator) checkDeviceSharing(ctx context.Context, tx *domain.Transaction) (bool, string, error) {
	cfg := e.cfg.Rules.DeviceSharing
	if !cfg.Enabled || tx.DeviceID == "" {
		return false, "", nil
	}

	window := time.Duration(cfg.WindowDays) * 24 * time.Hour
	start := tx.Timestamp.Add(-window)

	customers, err := e.history.DistinctCustomersForDevice(ctx, tx.DeviceID, start, tx.Timestamp)
	if err != nil {
		return false, "", err
	}

	if customers >= cfg.Threshold {
		return true, fmt.Sprintf("Device %s used by %d different customers in the last %d days",
			tx.DeviceID, customers, cfg.WindowDays), nil
	}
	return false, "", nil
}

// checkUnusualTime fires when the transaction's local hour falls in the
// configured range, inclusive on both ends.
func (e *Evaluator) checkUnusualTime(tx *domain.Transaction) (bool, string, error) {
	cfg := e.cfg.Rules.UnusualTime
	if !cfg.Enabled {
		return false, "", nil
	}

	hour := tx.Timestamp.Hour()
	if hour >= cfg.StartHour && hour <= cfg.EndHour {
		return true, fmt.Sprintf("Transaction occurred at unusual time: %s",
			tx.Timestamp.Format("15:04")), nil
	}
	return false, "", nil
}

// checkSuspiciousMerchant fires when the merchant category code is a
// member of the configured high-risk set.
func (e *Evaluator) checkSuspiciousMerchant(tx *domain.Transaction) (bool, string, error) {
	cfg := e.cfg.Rules.SuspiciousMerchant
	if !cfg.Enabled {
		return false, "", nil
	}

	if _, ok := e.mccSet[tx.MCCCode]; ok {
		return true, fmt.Sprintf("Transaction at high-risk merchant category (MCC: %s)", tx.MCCCode), nil
	}
	return false, "", nil
}

// formatAmount renders a monetary value with thousands separators,
// e.g. 6000 -> "6,000.00".
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	neg := false
	if strings.HasPrefix(intPart, "-") {
		neg = true
		intPart = intPart[1:]
	}

	var b strings.Builder
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}

	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}

// formatWindow renders a window duration for evidence strings:
// whole hours as "N hour(s)", anything else in minutes.
func formatWindow(w time.Duration) string {
	if w >= time.Hour && w%time.Hour == 0 {
		hours := int(w / time.Hour)
		if hours == 1 {
			return "hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%d minutes", int(w/time.Minute))
}
