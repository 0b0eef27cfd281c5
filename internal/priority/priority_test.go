package priority

import (
	"math"
	"testing"
	"time"

	"github.com/fraudops/kestrel/internal/domain"
)

func newTestScheduler() *Scheduler {
	return NewScheduler(domain.DefaultEngineConfig())
}

func alertAged(severity string, risk float64, age time.Duration, now time.Time) *domain.Alert {
	return &domain.Alert{
		ID:        "ALT-TEST",
		Severity:  severity,
		RiskScore: risk,
		Status:    domain.StatusOpen,
		CreatedAt: now.Add(-age),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPriority(t *testing.T) {
	s := newTestScheduler()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("FreshAlertIsPureRisk", func(t *testing.T) {
		a := alertAged(domain.SeverityHigh, 70, 0, now)
		// risk*0.6 with zero age penalty.
		if got := s.Priority(a, now); !almostEqual(got, 42) {
			t.Errorf("expected 42, got %.4f", got)
		}
	})

	t.Run("PenaltyGrowsLinearlyToSLA", func(t *testing.T) {
		// HIGH SLA is 60 minutes. At 30 minutes the penalty is half of 40.
		a := alertAged(domain.SeverityHigh, 70, 30*time.Minute, now)
		want := 70*0.6 + 20*0.4
		if got := s.Priority(a, now); !almostEqual(got, want) {
			t.Errorf("expected %.4f, got %.4f", want, got)
		}
	})

	t.Run("PenaltyAtExactlySLA", func(t *testing.T) {
		a := alertAged(domain.SeverityHigh, 70, 60*time.Minute, now)
		want := 70*0.6 + 40*0.4
		if got := s.Priority(a, now); !almostEqual(got, want) {
			t.Errorf("expected %.4f, got %.4f", want, got)
		}
	})

	t.Run("PenaltyKeepsGrowingPastSLA", func(t *testing.T) {
		// 90 minutes is 30 minutes past a 60-minute SLA: extra penalty
		// is (30/60)*60 = 30 on top of the pre-SLA max of 40.
		a := alertAged(domain.SeverityHigh, 50, 90*time.Minute, now)
		want := 50*0.6 + (40+30)*0.4
		if got := s.Priority(a, now); !almostEqual(got, want) {
			t.Errorf("expected %.4f, got %.4f", want, got)
		}
	})

	t.Run("PenaltyCapsFarPastSLA", func(t *testing.T) {
		// Ten SLAs late: the extra penalty saturates at 60.
		a := alertAged(domain.SeverityHigh, 50, 600*time.Minute, now)
		want := 50*0.6 + (40+60)*0.4
		if got := s.Priority(a, now); !almostEqual(got, want) {
			t.Errorf("expected %.4f, got %.4f", want, got)
		}
	})

	t.Run("ClampedAtMax", func(t *testing.T) {
		a := alertAged(domain.SeverityCritical, 100, 24*time.Hour, now)
		if got := s.Priority(a, now); got != 100 {
			t.Errorf("expected clamp to 100, got %.4f", got)
		}
	})

	t.Run("UnknownSeverityFallsBackToLowSLA", func(t *testing.T) {
		known := alertAged(domain.SeverityLow, 50, time.Hour, now)
		unknown := alertAged("BOGUS", 50, time.Hour, now)
		if s.Priority(known, now) != s.Priority(unknown, now) {
			t.Error("unknown severity should score like LOW")
		}
	})
}

func TestSLAStatus(t *testing.T) {
	s := newTestScheduler()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		severity string
		age      time.Duration
		want     string
	}{
		{"FreshCritical", domain.SeverityCritical, 0, domain.SLAOK},
		{"CriticalUnder80Pct", domain.SeverityCritical, 11 * time.Minute, domain.SLAOK},
		{"CriticalOver80Pct", domain.SeverityCritical, 13 * time.Minute, domain.SLAApproaching},
		{"CriticalAtThreshold", domain.SeverityCritical, 15 * time.Minute, domain.SLAApproaching},
		{"CriticalPast", domain.SeverityCritical, 16 * time.Minute, domain.SLAPast},
		{"HighApproaching", domain.SeverityHigh, 50 * time.Minute, domain.SLAApproaching},
		{"HighPast", domain.SeverityHigh, 2 * time.Hour, domain.SLAPast},
		{"LowOK", domain.SeverityLow, 12 * time.Hour, domain.SLAOK},
		// 1200 minutes is past 80% of the 1440-minute target.
		{"LowApproaching", domain.SeverityLow, 20 * time.Hour, domain.SLAApproaching},
		{"LowPast", domain.SeverityLow, 25 * time.Hour, domain.SLAPast},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := alertAged(tc.severity, 50, tc.age, now)
			if got := s.SLAStatus(a, now); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestTimeToSLA(t *testing.T) {
	s := newTestScheduler()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("RemainingMinutes", func(t *testing.T) {
		a := alertAged(domain.SeverityHigh, 50, 20*time.Minute, now)
		if got := s.TimeToSLA(a, now); !almostEqual(got, 40) {
			t.Errorf("expected 40 minutes remaining, got %.4f", got)
		}
	})

	t.Run("NegativePastBreach", func(t *testing.T) {
		a := alertAged(domain.SeverityCritical, 50, 45*time.Minute, now)
		if got := s.TimeToSLA(a, now); !almostEqual(got, -30) {
			t.Errorf("expected -30, got %.4f", got)
		}
	})
}

func TestSortByPriority(t *testing.T) {
	s := newTestScheduler()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("DescendingOrder", func(t *testing.T) {
		low := alertAged(domain.SeverityLow, 20, 0, now)
		low.ID = "ALT-LOW"
		high := alertAged(domain.SeverityHigh, 70, 0, now)
		high.ID = "ALT-HIGH"
		// Old MEDIUM outranks fresh HIGH once the age penalty kicks in.
		aged := alertAged(domain.SeverityMedium, 65, 8*time.Hour, now)
		aged.ID = "ALT-AGED"

		alerts := []*domain.Alert{low, high, aged}
		s.SortByPriority(alerts, now)

		want := []string{"ALT-AGED", "ALT-HIGH", "ALT-LOW"}
		for i, id := range want {
			if alerts[i].ID != id {
				t.Errorf("position %d: expected %s, got %s", i, id, alerts[i].ID)
			}
		}
	})

	t.Run("StableOnTies", func(t *testing.T) {
		first := alertAged(domain.SeverityHigh, 70, 0, now)
		first.ID = "ALT-FIRST"
		second := alertAged(domain.SeverityHigh, 70, 0, now)
		second.ID = "ALT-SECOND"

		alerts := []*domain.Alert{first, second}
		s.SortByPriority(alerts, now)

		if alerts[0].ID != "ALT-FIRST" || alerts[1].ID != "ALT-SECOND" {
			t.Errorf("tie broke original order: %s, %s", alerts[0].ID, alerts[1].ID)
		}
	})

	t.Run("EmptyAndSingle", func(t *testing.T) {
		s.SortByPriority(nil, now)
		one := []*domain.Alert{alertAged(domain.SeverityLow, 10, 0, now)}
		s.SortByPriority(one, now)
		if len(one) != 1 {
			t.Error("single-element sort changed length")
		}
	})
}
