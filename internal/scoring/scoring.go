// Package scoring turns fired rule names into a bounded risk score and
// a discrete severity tier.
package scoring

import (
	"github.com/fraudops/kestrel/internal/domain"
)

// Scorer computes risk scores and severities from an immutable
// configuration. Pure and stateless; safe for concurrent use.
type Scorer struct {
	cfg     *domain.EngineConfig
	weights map[string]int
}

// NewScorer creates a scorer bound to a configuration. The weight table
// is the rule-weight map plus each enabled custom rule's own weight;
// an explicit rule_weights entry wins over the rule's declared weight.
func NewScorer(cfg *domain.EngineConfig) *Scorer {
	weights := make(map[string]int, len(cfg.RuleWeights)+len(cfg.CustomRules))
	for name, w := range cfg.RuleWeights {
		weights[name] = w
	}
	for _, cr := range cfg.CustomRules {
		if !cr.Enabled || cr.Weight <= 0 {
			continue
		}
		if _, ok := weights[cr.Name]; !ok {
			weights[cr.Name] = cr.Weight
		}
	}
	return &Scorer{cfg: cfg, weights: weights}
}

// RiskScore sums the weights of the fired rules, clamped to [0, 100].
// An unrecognized rule name falls back to the configured default weight.
func (s *Scorer) RiskScore(fired []string) float64 {
	score := 0
	for _, rule := range fired {
		weight, ok := s.weights[rule]
		if !ok {
			weight = s.cfg.DefaultRuleWeight
		}
		score += weight
	}
	if score > 100 {
		score = 100
	}
	return float64(score)
}

// Severity maps a risk score to a tier by comparing against the
// configured cut points in descending order; first match wins. Scores
// below every cut point are LOW. The mapping is deterministic and
// monotonically non-decreasing in the score.
func (s *Scorer) Severity(riskScore float64) string {
	for _, severity := range []string{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium} {
		if threshold, ok := s.cfg.SeverityThresholds[severity]; ok {
			if riskScore >= float64(threshold) {
				return severity
			}
		}
	}
	return domain.SeverityLow
}

// Score is the combined evaluation: risk score plus severity tier.
func (s *Scorer) Score(fired []string) (float64, string) {
	risk := s.RiskScore(fired)
	return risk, s.Severity(risk)
}
