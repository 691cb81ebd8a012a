package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Matcher   MatcherConfig   `yaml:"matcher" mapstructure:"matcher"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Signals   SignalsConfig   `yaml:"signals" mapstructure:"signals"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Decision  DecisionConfig  `yaml:"decision" mapstructure:"decision"`
	Allocator AllocatorConfig `yaml:"allocator" mapstructure:"allocator"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MatcherConfig configures identity resolution.
type MatcherConfig struct {
	// PolicyPath optionally points at a YAML file overriding per-strategy
	// confidence floors. Empty means built-in defaults.
	PolicyPath string `yaml:"policy_path" mapstructure:"policy_path"`
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// ScorerConfig holds composite scoring weights and floors. Weights sum to 100.
type ScorerConfig struct {
	ExpectedReturnWeight float64 `yaml:"expected_return_weight" mapstructure:"expected_return_weight"`
	SuccessProbWeight    float64 `yaml:"success_prob_weight" mapstructure:"success_prob_weight"`
	RelevanceWeight      float64 `yaml:"relevance_weight" mapstructure:"relevance_weight"`
	CostEfficiencyWeight float64 `yaml:"cost_efficiency_weight" mapstructure:"cost_efficiency_weight"`
	PersonaFitWeight     float64 `yaml:"persona_fit_weight" mapstructure:"persona_fit_weight"`

	// ReturnCap normalizes the expected-return multiple: multiples at or
	// above the cap score 100 on that component.
	ReturnCap float64 `yaml:"return_cap" mapstructure:"return_cap"`

	// CostReference normalizes expected cost: a free action scores 100,
	// an action at or above the reference cost scores 0.
	CostReference float64 `yaml:"cost_reference" mapstructure:"cost_reference"`

	// ConfidenceFloor below which requests route to manual review (0..100).
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`

	// MissingSignalPenalty multiplies confidence once per missing signal.
	MissingSignalPenalty float64 `yaml:"missing_signal_penalty" mapstructure:"missing_signal_penalty"`
}

// SignalsConfig bounds external signal provider calls.
type SignalsConfig struct {
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec      float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst           int     `yaml:"burst" mapstructure:"burst"`
	BreakerOpenSecs int     `yaml:"breaker_open_secs" mapstructure:"breaker_open_secs"`
}

// LedgerConfig configures reservation handling.
type LedgerConfig struct {
	ReservationTTLSecs int `yaml:"reservation_ttl_secs" mapstructure:"reservation_ttl_secs"`
	SweepIntervalSecs  int `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
}

// DecisionConfig configures the decision core.
type DecisionConfig struct {
	Threshold         float64  `yaml:"threshold" mapstructure:"threshold"` // composite GO threshold, 0..100
	Workers           int      `yaml:"workers" mapstructure:"workers"`
	CooldownHours     int      `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
	DeferHorizonHours int      `yaml:"defer_horizon_hours" mapstructure:"defer_horizon_hours"`
	SendWindowStart   int      `yaml:"send_window_start" mapstructure:"send_window_start"` // local hour, inclusive
	SendWindowEnd     int      `yaml:"send_window_end" mapstructure:"send_window_end"`     // local hour, exclusive
	SensitiveTriggers []string `yaml:"sensitive_triggers" mapstructure:"sensitive_triggers"`
	RulesPath         string   `yaml:"rules_path" mapstructure:"rules_path"`
}

// AllocatorConfig configures the allocation optimizer.
type AllocatorConfig struct {
	CadenceHours      int     `yaml:"cadence_hours" mapstructure:"cadence_hours"`
	SolverTimeoutSecs int     `yaml:"solver_timeout_secs" mapstructure:"solver_timeout_secs"`
	FairnessFloor     float64 `yaml:"fairness_floor" mapstructure:"fairness_floor"` // min USD per campaign with demand
	MinScore          float64 `yaml:"min_score" mapstructure:"min_score"`           // composite floor for demand counting
}

// ReportConfig holds budget-vs-actual classification thresholds, as
// percentage variance from budget.
type ReportConfig struct {
	OverPct          float64 `yaml:"over_pct" mapstructure:"over_pct"`
	WarningUnderPct  float64 `yaml:"warning_under_pct" mapstructure:"warning_under_pct"`
	CriticalUnderPct float64 `yaml:"critical_under_pct" mapstructure:"critical_under_pct"`
}

// EventsConfig configures the NATS event publisher.
type EventsConfig struct {
	URL           string `yaml:"url" mapstructure:"url"` // empty disables publishing
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// ServerConfig configures the ingest/admin HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("matcher.batch_size", 200)
	v.SetDefault("scorer.expected_return_weight", 25)
	v.SetDefault("scorer.success_prob_weight", 25)
	v.SetDefault("scorer.relevance_weight", 20)
	v.SetDefault("scorer.cost_efficiency_weight", 15)
	v.SetDefault("scorer.persona_fit_weight", 15)
	v.SetDefault("scorer.return_cap", 5.0)
	v.SetDefault("scorer.cost_reference", 50.0)
	v.SetDefault("scorer.confidence_floor", 40)
	v.SetDefault("scorer.missing_signal_penalty", 0.75)
	v.SetDefault("signals.timeout_secs", 5)
	v.SetDefault("signals.max_attempts", 3)
	v.SetDefault("signals.rate_per_sec", 20)
	v.SetDefault("signals.burst", 10)
	v.SetDefault("signals.breaker_open_secs", 30)
	v.SetDefault("ledger.reservation_ttl_secs", 300)
	v.SetDefault("ledger.sweep_interval_secs", 60)
	v.SetDefault("decision.threshold", 60)
	v.SetDefault("decision.workers", 8)
	v.SetDefault("decision.cooldown_hours", 72)
	v.SetDefault("decision.defer_horizon_hours", 24)
	v.SetDefault("decision.send_window_start", 9)
	v.SetDefault("decision.send_window_end", 21)
	v.SetDefault("allocator.cadence_hours", 24)
	v.SetDefault("allocator.solver_timeout_secs", 10)
	v.SetDefault("allocator.fairness_floor", 0)
	v.SetDefault("allocator.min_score", 60)
	v.SetDefault("report.over_pct", 10)
	v.SetDefault("report.warning_under_pct", 15)
	v.SetDefault("report.critical_under_pct", 40)
	v.SetDefault("events.subject_prefix", "outreach")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
