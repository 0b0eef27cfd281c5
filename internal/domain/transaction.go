package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransaction marks a record that failed ingest validation.
// Such records are never evaluated; the caller attributes them to ingestion.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction represents a card transaction to be evaluated.
// Records are immutable once ingested; the engine only reads them.
type Transaction struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`

	// Merchant details
	Merchant string `json:"merchant"`
	MCCCode  string `json:"mccCode"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Channel details
	CardType  string `json:"cardType,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`

	Status string `json:"status"`
}

// TransactionRequest is the API request payload for transaction ingestion.
type TransactionRequest struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Merchant   string    `json:"merchant"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	CardType   string    `json:"cardType,omitempty"`
	DeviceID   string    `json:"deviceId,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	Country    string    `json:"country,omitempty"`
	City       string    `json:"city,omitempty"`
	MCCCode    string    `json:"mccCode,omitempty"`
	Status     string    `json:"status,omitempty"`
}

// Validate checks the required fields of an ingest request.
func (r *TransactionRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTransaction)
	}
	if r.CustomerID == "" {
		return fmt.Errorf("%w: customerId is required", ErrInvalidTransaction)
	}
	if r.Merchant == "" {
		return fmt.Errorf("%w: merchant is required", ErrInvalidTransaction)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidTransaction)
	}
	return nil
}

// ToTransaction converts a validated request to a Transaction domain object.
func (r *TransactionRequest) ToTransaction() *Transaction {
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	status := r.Status
	if status == "" {
		status = "completed"
	}
	return &Transaction{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		Merchant:   r.Merchant,
		Amount:     r.Amount,
		Currency:   currency,
		Timestamp:  r.Timestamp,
		CreatedAt:  time.Now().UTC(),
		CardType:   r.CardType,
		DeviceID:   r.DeviceID,
		IPAddress:  r.IPAddress,
		Country:    r.Country,
		City:       r.City,
		MCCCode:    r.MCCCode,
		Status:     status,
	}
}
