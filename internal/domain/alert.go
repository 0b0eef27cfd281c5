package domain

import (
	"time"
)

// Severity levels, ordered from least to most urgent.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Alert lifecycle states.
const (
	StatusOpen      = "OPEN"
	StatusReviewing = "REVIEWING"
	StatusEscalated = "ESCALATED"
	StatusDismissed = "DISMISSED"
	StatusResolved  = "RESOLVED"
)

// SLA states reported by the priority scheduler.
const (
	SLAOK          = "OK"
	SLAApproaching = "APPROACHING_SLA"
	SLAPast        = "PAST_SLA"
)

// Alert is a fraud flag raised for exactly one transaction.
// At most one alert exists per transaction id; the repository enforces
// this with a uniqueness constraint.
type Alert struct {
	ID            string `json:"id"`
	TransactionID string `json:"transactionId"`

	// Comma-joined names of the rules that fired, in evaluation order.
	RuleTriggered string `json:"ruleTriggered"`

	Severity  string  `json:"severity"`
	RiskScore float64 `json:"riskScore"` // 0-100

	Status    string `json:"status"`
	AnalystID string `json:"analystId,omitempty"`

	// Pipe-joined evidence strings from the rules that fired.
	Notes string `json:"notes,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// IsTerminal reports whether the alert has left the live triage queue.
func (a *Alert) IsTerminal() bool {
	return a.Status == StatusResolved || a.Status == StatusDismissed
}

// statusTransitions encodes the triage workflow state machine.
// Alerts start OPEN; RESOLVED and DISMISSED are terminal.
var statusTransitions = map[string][]string{
	StatusOpen:      {StatusReviewing, StatusDismissed, StatusResolved},
	StatusReviewing: {StatusEscalated, StatusDismissed, StatusResolved},
	StatusEscalated: {StatusResolved},
}

// CanTransition reports whether the triage workflow permits moving an
// alert from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Analyst actions recorded in the audit log.
const (
	ActionViewed    = "VIEWED"
	ActionReviewing = "REVIEWING"
	ActionEscalated = "ESCALATED"
	ActionDismissed = "DISMISSED"
	ActionResolved  = "RESOLVED"
	ActionAssigned  = "ASSIGNED"
	ActionNoteAdded = "NOTE_ADDED"
)

// AuditEntry records a single analyst action against an alert.
type AuditEntry struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alertId"`
	AnalystID string    `json:"analystId"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
