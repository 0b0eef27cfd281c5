// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Status   string
	Severity string
	Limit    int
}

// Store defines the interface for data persistence. It doubles as the
// transaction history store consulted by the rule evaluator; windowed
// reads are single queries so each rule sees a consistent snapshot.
type Store interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	TransactionsByCustomer(ctx context.Context, customerID string) ([]*Transaction, error)

	// ListUnalertedTransactions returns transactions with no alert yet
	// (anti-join on transaction id), newest first. limit <= 0 means all.
	ListUnalertedTransactions(ctx context.Context, limit int) ([]*Transaction, error)

	// Windowed history reads for rule evaluation.
	//
	// CountTransactions counts a customer's transactions with timestamp
	// in [start, end], both bounds inclusive, excluding excludeID.
	CountTransactions(ctx context.Context, customerID string, start, end time.Time, excludeID string) (int, error)

	// TransactionsInWindow returns a customer's transactions with
	// timestamp in [start, end) — end exclusive — excluding excludeID.
	TransactionsInWindow(ctx context.Context, customerID string, start, end time.Time, excludeID string) ([]*Transaction, error)

	// DistinctCustomersForDevice counts distinct customer ids that used
	// a device with timestamp in [start, end], both bounds inclusive.
	DistinctCustomersForDevice(ctx context.Context, deviceID string, start, end time.Time) (int, error)

	// Alert operations
	//
	// InsertAlert is a conditional insert: it returns false with a nil
	// error when an alert already exists for the transaction id. The
	// losing writer of a concurrent race sees false, not an error.
	InsertAlert(ctx context.Context, alert *Alert) (bool, error)
	AlertExists(ctx context.Context, txID string) (bool, error)
	GetAlert(ctx context.Context, alertID string) (*Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error)
	AlertsByCustomer(ctx context.Context, customerID string) ([]*Alert, error)

	// UpdateAlertStatus applies a triage workflow transition, enforcing
	// the status state machine. RESOLVED sets resolved_at.
	UpdateAlertStatus(ctx context.Context, alertID, status, analystID string) (*Alert, error)

	// AssignAlert sets the owning analyst without changing status.
	AssignAlert(ctx context.Context, alertID, analystID string) error

	// Audit log
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, alertID string) ([]*AuditEntry, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
