// Package config loads service and engine configuration from YAML.
//
// Loading is fallback-first: a missing file yields built-in defaults,
// and a document only overrides the fields it names. A malformed
// document is reported but never takes the service down; callers get
// the defaults back alongside the error.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fraudops/kestrel/internal/domain"
)

// Load reads the service configuration from path. An empty path or a
// missing file yields defaults.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Warn("config file not found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal over the defaults: fields absent from the document
	// keep their default values.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return domain.DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	slog.Info("config loaded", "path", path)
	return cfg, nil
}

// LoadEngineConfig reads the engine configuration from path. Any
// failure falls back to built-in defaults so a bad document degrades
// detection tuning, never availability.
func LoadEngineConfig(path string) (*domain.EngineConfig, error) {
	cfg := domain.DefaultEngineConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Warn("engine config file not found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read engine config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return domain.DefaultEngineConfig(), fmt.Errorf("failed to parse engine config: %w", err)
	}

	repairEngineConfig(cfg)

	slog.Info("engine config loaded", "path", path)
	return cfg, nil
}

// repairEngineConfig resets individual values a document set to
// something unusable. Zero or negative thresholds would make every
// alert instantly past SLA or divide by zero in the priority formula.
func repairEngineConfig(cfg *domain.EngineConfig) {
	defaults := domain.DefaultEngineConfig()

	// A null section in the document leaves the map nil. Restore the
	// defaults before the per-key repair writes into it.
	if cfg.RuleWeights == nil {
		slog.Warn("rule weights missing, using defaults")
		cfg.RuleWeights = defaults.RuleWeights
	}
	if cfg.SeverityThresholds == nil {
		slog.Warn("severity thresholds missing, using defaults")
		cfg.SeverityThresholds = defaults.SeverityThresholds
	}
	if cfg.SLAThresholds == nil {
		slog.Warn("SLA thresholds missing, using defaults")
		cfg.SLAThresholds = defaults.SLAThresholds
	}

	for severity, def := range defaults.SLAThresholds {
		if cfg.SLAThresholds[severity] <= 0 {
			slog.Warn("invalid SLA threshold, using default",
				"severity", severity,
				"default_minutes", def,
			)
			cfg.SLAThresholds[severity] = def
		}
	}

	if cfg.DefaultRuleWeight <= 0 {
		cfg.DefaultRuleWeight = defaults.DefaultRuleWeight
	}
	if cfg.Priority.MaxPriorityScore <= 0 {
		cfg.Priority.MaxPriorityScore = defaults.Priority.MaxPriorityScore
	}
	if cfg.Priority.RiskScoreWeight <= 0 {
		cfg.Priority.RiskScoreWeight = defaults.Priority.RiskScoreWeight
	}
	if cfg.Priority.AgePenaltyWeight <= 0 {
		cfg.Priority.AgePenaltyWeight = defaults.Priority.AgePenaltyWeight
	}
	if cfg.Priority.AgePenaltyBeforeSLAMax <= 0 {
		cfg.Priority.AgePenaltyBeforeSLAMax = defaults.Priority.AgePenaltyBeforeSLAMax
	}
	if cfg.Priority.AgePenaltyAfterSLAMax <= 0 {
		cfg.Priority.AgePenaltyAfterSLAMax = defaults.Priority.AgePenaltyAfterSLAMax
	}
}
