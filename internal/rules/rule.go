// Package rules implements the fraud rule evaluator.
package rules

import (
	"github.com/fraudops/kestrel/internal/domain"
)

// Kind identifies one of the built-in rule checks.
type Kind string

// Built-in rule kinds. The string values are the canonical rule names
// recorded on alerts and used as rule-weight keys.
const (
	KindHighAmount         Kind = domain.RuleHighAmount
	KindVelocity           Kind = domain.RuleVelocity
	KindGeoJump            Kind = domain.RuleGeoJump
	KindDeviceSharing      Kind = domain.RuleDeviceSharing
	KindUnusualTime        Kind = domain.RuleUnusualTime
	KindSuspiciousMerchant Kind = domain.RuleSuspiciousMerchant
)

// EvaluationOrder is the fixed order in which built-in rules run.
// Custom rules evaluate after these, in configuration order.
var EvaluationOrder = []Kind{
	KindHighAmount,
	KindVelocity,
	KindGeoJump,
	KindDeviceSharing,
	KindUnusualTime,
	KindSuspiciousMerchant,
}
