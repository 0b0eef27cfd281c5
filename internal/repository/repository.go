// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fraudops/kestrel/internal/domain"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// SQLStore implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `id, customer_id, merchant, mcc_code, amount, currency,
	   timestamp, created_at, card_type, device_id, ip_address, country, city, status`

// SaveTransaction stores a transaction. Replaying an id already stored
// is a no-op, so ingestion is idempotent.
func (s *SQLStore) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, customer_id, merchant, mcc_code, amount, currency,
			timestamp, created_at, card_type, device_id, ip_address,
			country, city, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		tx.ID, tx.CustomerID, tx.Merchant, tx.MCCCode,
		tx.Amount, tx.Currency,
		tx.Timestamp, tx.CreatedAt,
		tx.CardType, tx.DeviceID, tx.IPAddress,
		tx.Country, tx.City, tx.Status,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (s *SQLStore) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = ?
	`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, s.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// TransactionsByCustomer retrieves all of a customer's transactions,
// most recent first.
func (s *SQLStore) TransactionsByCustomer(ctx context.Context, customerID string) ([]*domain.Transaction, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customerID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE customer_id = ?
		ORDER BY timestamp DESC
	`

	return s.queryTransactions(ctx, query, customerID)
}

// ListUnalertedTransactions returns transactions that have no alert yet,
// most recent first. The anti-join makes batch processing idempotent:
// an already-alerted transaction never comes back.
func (s *SQLStore) ListUnalertedTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT t.id, t.customer_id, t.merchant, t.mcc_code, t.amount, t.currency,
			   t.timestamp, t.created_at, t.card_type, t.device_id, t.ip_address,
			   t.country, t.city, t.status
		FROM transactions t
		LEFT JOIN alerts a ON a.transaction_id = t.id
		WHERE a.id IS NULL
		ORDER BY t.timestamp DESC
	`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.queryTransactions(ctx, query)
}

// CountTransactions counts a customer's transactions in [start, end],
// both bounds inclusive, excluding excludeID.
func (s *SQLStore) CountTransactions(ctx context.Context, customerID string, start, end time.Time, excludeID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE customer_id = ?
		  AND timestamp >= ?
		  AND timestamp <= ?
		  AND id != ?
	`

	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(query), customerID, start, end, excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// TransactionsInWindow returns a customer's transactions in [start, end),
// end exclusive, excluding excludeID, most recent first.
func (s *SQLStore) TransactionsInWindow(ctx context.Context, customerID string, start, end time.Time, excludeID string) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE customer_id = ?
		  AND timestamp >= ?
		  AND timestamp < ?
		  AND id != ?
		ORDER BY timestamp DESC
	`

	return s.queryTransactions(ctx, query, customerID, start, end, excludeID)
}

// DistinctCustomersForDevice counts distinct customers that used a
// device in [start, end], both bounds inclusive.
func (s *SQLStore) DistinctCustomersForDevice(ctx context.Context, deviceID string, start, end time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT customer_id)
		FROM transactions
		WHERE device_id = ?
		  AND timestamp >= ?
		  AND timestamp <= ?
	`

	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(query), deviceID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count device customers: %w", err)
	}
	return count, nil
}

const alertColumns = `id, transaction_id, rule_triggered, severity, risk_score,
	   status, analyst_id, notes, created_at, resolved_at`

// InsertAlert stores an alert unless one already exists for the same
// transaction. Returns true when this call created the alert; false
// with a nil error when another writer got there first.
func (s *SQLStore) InsertAlert(ctx context.Context, alert *domain.Alert) (bool, error) {
	if alert == nil || alert.TransactionID == "" {
		return false, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, transaction_id, rule_triggered, severity, risk_score,
			status, analyst_id, notes, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, s.rebind(query),
		alert.ID, alert.TransactionID, alert.RuleTriggered,
		alert.Severity, alert.RiskScore,
		alert.Status, alert.AnalystID, alert.Notes,
		alert.CreatedAt, alert.ResolvedAt,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// AlertExists reports whether an alert exists for a transaction.
func (s *SQLStore) AlertExists(ctx context.Context, txID string) (bool, error) {
	query := `SELECT COUNT(*) FROM alerts WHERE transaction_id = ?`

	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(query), txID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetAlert retrieves an alert by ID.
func (s *SQLStore) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE id = ?
	`

	alert, err := scanAlert(s.db.QueryRowContext(ctx, s.rebind(query), alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ListAlerts retrieves alerts matching the filter, newest first.
func (s *SQLStore) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE 1 = 1
	`
	var args []any

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, filter.Severity)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	return s.queryAlerts(ctx, query, args...)
}

// AlertsByCustomer retrieves all alerts raised on a customer's
// transactions, newest first.
func (s *SQLStore) AlertsByCustomer(ctx context.Context, customerID string) ([]*domain.Alert, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customerID is required", ErrInvalidInput)
	}

	query := `
		SELECT a.id, a.transaction_id, a.rule_triggered, a.severity, a.risk_score,
			   a.status, a.analyst_id, a.notes, a.created_at, a.resolved_at
		FROM alerts a
		JOIN transactions t ON t.id = a.transaction_id
		WHERE t.customer_id = ?
		ORDER BY a.created_at DESC
	`

	return s.queryAlerts(ctx, query, customerID)
}

// UpdateAlertStatus applies a triage workflow transition. The status
// guard in the UPDATE keeps concurrent analysts from clobbering each
// other: only the writer that saw the current status wins.
func (s *SQLStore) UpdateAlertStatus(ctx context.Context, alertID, status, analystID string) (*domain.Alert, error) {
	alert, err := s.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(alert.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, status)
	}

	var resolvedAt *time.Time
	if status == domain.StatusResolved || status == domain.StatusDismissed {
		now := time.Now().UTC()
		resolvedAt = &now
	}

	query := `
		UPDATE alerts
		SET status = ?, analyst_id = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.ExecContext(ctx, s.rebind(query),
		status, analystID, resolvedAt, alertID, alert.Status,
	)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: alert %s changed concurrently", ErrInvalidTransition, alertID)
	}

	alert.Status = status
	alert.AnalystID = analystID
	alert.ResolvedAt = resolvedAt
	return alert, nil
}

// AssignAlert sets the owning analyst without changing status.
func (s *SQLStore) AssignAlert(ctx context.Context, alertID, analystID string) error {
	query := `UPDATE alerts SET analyst_id = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, s.rebind(query), analystID, alertID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAudit records an analyst action.
func (s *SQLStore) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	if entry == nil || entry.AlertID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO audit_log (id, alert_id, analyst_id, action, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		entry.ID, entry.AlertID, entry.AnalystID,
		entry.Action, entry.Details, entry.Timestamp,
	)
	return err
}

// ListAudit retrieves an alert's audit trail in chronological order.
func (s *SQLStore) ListAudit(ctx context.Context, alertID string) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, alert_id, analyst_id, action, details, timestamp
		FROM audit_log
		WHERE alert_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.AlertID, &e.AnalystID, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func (s *SQLStore) queryAlerts(ctx context.Context, query string, args ...any) ([]*domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID, &tx.CustomerID, &tx.Merchant, &tx.MCCCode,
		&tx.Amount, &tx.Currency,
		&tx.Timestamp, &tx.CreatedAt,
		&tx.CardType, &tx.DeviceID, &tx.IPAddress,
		&tx.Country, &tx.City, &tx.Status,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func scanAlert(row scanner) (*domain.Alert, error) {
	var alert domain.Alert
	var resolvedAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.TransactionID, &alert.RuleTriggered,
		&alert.Severity, &alert.RiskScore,
		&alert.Status, &alert.AnalystID, &alert.Notes,
		&alert.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		alert.ResolvedAt = &t
	}
	return &alert, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
