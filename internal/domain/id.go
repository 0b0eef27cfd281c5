package domain

import (
	"strings"

	"github.com/google/uuid"
)

// shortID returns a 12-character uppercase hex id with the given prefix,
// e.g. "ALT3F29AC41B07D".
func shortID(prefix string) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return prefix + hex[:12]
}

// NewAlertID generates a unique alert identifier.
func NewAlertID() string { return shortID("ALT") }

// NewAuditID generates a unique audit log identifier.
func NewAuditID() string { return shortID("LOG") }
