package domain

import "time"

// Canonical rule names. These are the values stored in Alert.RuleTriggered
// and the keys of the rule-weight map.
const (
	RuleHighAmount         = "HIGH_AMOUNT"
	RuleVelocity           = "VELOCITY"
	RuleGeoJump            = "GEO_JUMP"
	RuleDeviceSharing      = "DEVICE_SHARING"
	RuleUnusualTime        = "UNUSUAL_TIME"
	RuleSuspiciousMerchant = "SUSPICIOUS_MERCHANT"
)

// EngineConfig holds every tunable of the detection and prioritization
// engine. It is loaded once at startup and must be treated as read-only
// for the lifetime of the engine; reconfiguring requires a new engine.
type EngineConfig struct {
	Rules              RulesConfig        `yaml:"rules" json:"rules"`
	RuleWeights        map[string]int     `yaml:"rule_weights" json:"ruleWeights"`
	DefaultRuleWeight  int                `yaml:"default_rule_weight" json:"defaultRuleWeight"`
	SeverityThresholds map[string]int     `yaml:"severity_thresholds" json:"severityThresholds"`
	SLAThresholds      map[string]int     `yaml:"sla_thresholds" json:"slaThresholds"`
	Priority           PriorityConfig     `yaml:"priority_calculation" json:"priorityCalculation"`
	CustomRules        []CustomRuleConfig `yaml:"custom_rules" json:"customRules,omitempty"`
}

// RulesConfig holds per-rule parameters. Each rule is independently
// toggleable; a disabled rule never fires and never touches the store.
type RulesConfig struct {
	HighAmount         HighAmountConfig         `yaml:"high_amount" json:"highAmount"`
	Velocity           VelocityConfig           `yaml:"velocity" json:"velocity"`
	GeoJump            GeoJumpConfig            `yaml:"geo_jump" json:"geoJump"`
	DeviceSharing      DeviceSharingConfig      `yaml:"device_sharing" json:"deviceSharing"`
	UnusualTime        UnusualTimeConfig        `yaml:"unusual_time" json:"unusualTime"`
	SuspiciousMerchant SuspiciousMerchantConfig `yaml:"suspicious_merchant" json:"suspiciousMerchant"`
}

// HighAmountConfig configures the HIGH_AMOUNT rule.
type HighAmountConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// VelocityConfig configures the VELOCITY rule.
type VelocityConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	Threshold     int  `yaml:"threshold" json:"threshold"`
	WindowMinutes int  `yaml:"window_minutes" json:"windowMinutes"`
}

// GeoJumpConfig configures the GEO_JUMP rule.
type GeoJumpConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	WindowMinutes int  `yaml:"window_minutes" json:"windowMinutes"`
}

// DeviceSharingConfig configures the DEVICE_SHARING rule.
type DeviceSharingConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	Threshold  int  `yaml:"threshold" json:"threshold"`
	WindowDays int  `yaml:"window_days" json:"windowDays"`
}

// UnusualTimeConfig configures the UNUSUAL_TIME rule.
// The hour range is inclusive on both ends.
type UnusualTimeConfig struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	StartHour int  `yaml:"start_hour" json:"startHour"`
	EndHour   int  `yaml:"end_hour" json:"endHour"`
}

// SuspiciousMerchantConfig configures the SUSPICIOUS_MERCHANT rule.
type SuspiciousMerchantConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	HighRiskMCCs []string `yaml:"high_risk_mccs" json:"highRiskMccs"`
}

// CustomRuleConfig defines an operator-supplied rule as a CEL expression
// over the transaction. Custom rules evaluate after the six built-ins,
// in configuration order. Weight is the rule's score contribution; an
// explicit rule_weights entry for the same name takes precedence.
type CustomRuleConfig struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
	Reason     string `yaml:"reason" json:"reason"`
	Weight     int    `yaml:"weight" json:"weight"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`
}

// PriorityConfig holds the coefficients of the priority formula.
type PriorityConfig struct {
	RiskScoreWeight        float64 `yaml:"risk_score_weight" json:"riskScoreWeight"`
	AgePenaltyWeight       float64 `yaml:"age_penalty_weight" json:"agePenaltyWeight"`
	MaxPriorityScore       float64 `yaml:"max_priority_score" json:"maxPriorityScore"`
	AgePenaltyBeforeSLAMax float64 `yaml:"age_penalty_before_sla_max" json:"agePenaltyBeforeSlaMax"`
	AgePenaltyAfterSLAMax  float64 `yaml:"age_penalty_after_sla_max" json:"agePenaltyAfterSlaMax"`
}

// DefaultEngineConfig returns the built-in defaults. These are also the
// fallback for any field missing from an external configuration document.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Rules: RulesConfig{
			HighAmount: HighAmountConfig{Enabled: true, Threshold: 5000},
			Velocity:   VelocityConfig{Enabled: true, Threshold: 5, WindowMinutes: 60},
			GeoJump:    GeoJumpConfig{Enabled: true, WindowMinutes: 120},
			DeviceSharing: DeviceSharingConfig{
				Enabled: true, Threshold: 3, WindowDays: 7,
			},
			UnusualTime: UnusualTimeConfig{Enabled: true, StartHour: 2, EndHour: 5},
			SuspiciousMerchant: SuspiciousMerchantConfig{
				Enabled:      true,
				HighRiskMCCs: []string{"7995", "7273", "5967", "5912"},
			},
		},
		RuleWeights: map[string]int{
			RuleHighAmount:         30,
			RuleVelocity:           25,
			RuleGeoJump:            20,
			RuleDeviceSharing:      15,
			RuleUnusualTime:        10,
			RuleSuspiciousMerchant: 15,
		},
		DefaultRuleWeight: 5,
		SeverityThresholds: map[string]int{
			SeverityCritical: 80,
			SeverityHigh:     60,
			SeverityMedium:   40,
		},
		SLAThresholds: map[string]int{
			SeverityCritical: 15,
			SeverityHigh:     60,
			SeverityMedium:   240,
			SeverityLow:      1440,
		},
		Priority: PriorityConfig{
			RiskScoreWeight:        0.6,
			AgePenaltyWeight:       0.4,
			MaxPriorityScore:       100,
			AgePenaltyBeforeSLAMax: 40,
			AgePenaltyAfterSLAMax:  60,
		},
	}
}

// Config holds the complete Kestrel service configuration.
type Config struct {
	Server ServerConfig `yaml:"server" json:"server"`

	// EngineConfigPath points at the external engine configuration
	// document. Empty or missing means built-in defaults.
	EngineConfigPath string `yaml:"engine_config_path" json:"engineConfigPath"`

	Repository RepositoryConfig `yaml:"repository" json:"repository"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus" json:"eventBus"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	ServiceName string `yaml:"service_name" json:"serviceName"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver" json:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path" json:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host" json:"postgresHost"`
	PostgresPort     int    `yaml:"postgres_port" json:"postgresPort"`
	PostgresUser     string `yaml:"postgres_user" json:"postgresUser"`
	PostgresPassword string `yaml:"postgres_password" json:"postgresPassword"`
	PostgresDB       string `yaml:"postgres_db" json:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgres_ssl_mode" json:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns" json:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"connMaxLifetime"`
}

// DefaultConfig returns a default single-node configuration:
// SQLite storage, in-memory cache, channel event bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ClusterConfig returns a configuration for a multi-node deployment:
// PostgreSQL storage, Redis two-phase cache, NATS event bus.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
