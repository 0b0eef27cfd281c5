// Package priority computes triage-queue ordering for open alerts.
//
// Every function is pure with respect to wall-clock time: the caller
// passes "now", so scores can be recomputed repeatedly and concurrently
// without any writes.
package priority

import (
	"sort"
	"time"

	"github.com/fraudops/kestrel/internal/domain"
)

// Scheduler derives priority scores and SLA state from an immutable
// configuration.
type Scheduler struct {
	cfg *domain.EngineConfig
}

// NewScheduler creates a scheduler bound to a configuration.
func NewScheduler(cfg *domain.EngineConfig) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// slaThreshold returns the SLA target in minutes for a severity.
// Unknown severities fall back to the LOW threshold.
func (s *Scheduler) slaThreshold(severity string) float64 {
	if m, ok := s.cfg.SLAThresholds[severity]; ok {
		return float64(m)
	}
	return float64(s.cfg.SLAThresholds[domain.SeverityLow])
}

func ageMinutes(alert *domain.Alert, now time.Time) float64 {
	return now.Sub(alert.CreatedAt).Minutes()
}

// Priority computes the alert's priority score at the given instant.
//
// The risk component is risk_score * risk_weight. The age penalty grows
// linearly to AgePenaltyBeforeSLAMax at the SLA threshold, then keeps
// growing linearly past it, capped at before+after max. The final score
// is clamped to MaxPriorityScore.
func (s *Scheduler) Priority(alert *domain.Alert, now time.Time) float64 {
	p := s.cfg.Priority
	riskComponent := alert.RiskScore * p.RiskScoreWeight

	age := ageMinutes(alert, now)
	threshold := s.slaThreshold(alert.Severity)

	var agePenalty float64
	if age <= threshold {
		agePenalty = (age / threshold) * p.AgePenaltyBeforeSLAMax
	} else {
		overSLA := age - threshold
		extra := (overSLA / threshold) * p.AgePenaltyAfterSLAMax
		if extra > p.AgePenaltyAfterSLAMax {
			extra = p.AgePenaltyAfterSLAMax
		}
		agePenalty = p.AgePenaltyBeforeSLAMax + extra
	}

	score := riskComponent + agePenalty*p.AgePenaltyWeight
	if score > p.MaxPriorityScore {
		score = p.MaxPriorityScore
	}
	return score
}

// SLAStatus reports where the alert stands against its SLA target:
// PAST_SLA when age exceeds the threshold, APPROACHING_SLA beyond 80%
// of it, otherwise OK. Age exactly at the threshold is APPROACHING_SLA.
func (s *Scheduler) SLAStatus(alert *domain.Alert, now time.Time) string {
	age := ageMinutes(alert, now)
	threshold := s.slaThreshold(alert.Severity)

	switch {
	case age > threshold:
		return domain.SLAPast
	case age > threshold*0.8:
		return domain.SLAApproaching
	default:
		return domain.SLAOK
	}
}

// TimeToSLA returns the minutes remaining until SLA breach. Negative
// once breached; callers display the absolute value as "time past SLA".
func (s *Scheduler) TimeToSLA(alert *domain.Alert, now time.Time) float64 {
	return s.slaThreshold(alert.Severity) - ageMinutes(alert, now)
}

// SortByPriority orders alerts by descending priority score, in place.
// The sort is stable: ties keep their original relative order.
func (s *Scheduler) SortByPriority(alerts []*domain.Alert, now time.Time) {
	type scored struct {
		alert *domain.Alert
		score float64
	}

	items := make([]scored, len(alerts))
	for i, a := range alerts {
		items[i] = scored{alert: a, score: s.Priority(a, now)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	for i, it := range items {
		alerts[i] = it.alert
	}
}
