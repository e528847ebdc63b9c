package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backend selection
	Tier Tier `json:"tier"`

	// Engine tuning. All thresholds and magnitudes the source screens
	// hardcode inconsistently live here as named configuration.
	Fraud   FraudConfig   `json:"fraud"`
	Premium PremiumConfig `json:"premium"`
	Ranking RankingConfig `json:"ranking"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// FraudConfig tunes the built-in fraud rule set.
type FraudConfig struct {
	// HighAmountThreshold is the claimed amount above which HIGH_AMOUNT fires.
	HighAmountThreshold float64 `json:"highAmountThreshold"`

	// RapidClaimMinDays is the minimum plausible gap, in days, between
	// policy purchase (or the prior claim) and the incident.
	RapidClaimMinDays int `json:"rapidClaimMinDays"`
}

// PremiumConfig tunes the age-factor step function. Breakpoints are
// configuration, not hardcoded business law.
type PremiumConfig struct {
	YoungAgeMax   int     `json:"youngAgeMax"`  // discount below this age
	SeniorAgeMin  int     `json:"seniorAgeMin"` // surcharge above this age
	YoungFactor   float64 `json:"youngFactor"`
	NeutralFactor float64 `json:"neutralFactor"`
	SeniorFactor  float64 `json:"seniorFactor"`
}

// RankingConfig tunes recommendation scoring.
type RankingConfig struct {
	BaseScore     float64 `json:"baseScore"`
	BudgetBonus   float64 `json:"budgetBonus"`
	BudgetPenalty float64 `json:"budgetPenalty"`

	// Coverage thresholds per risk bracket, with their bonus/penalty.
	HighRiskCoverageMin   float64 `json:"highRiskCoverageMin"`
	HighRiskBonus         float64 `json:"highRiskBonus"`
	HighRiskPenalty       float64 `json:"highRiskPenalty"`
	NormalRiskCoverageMin float64 `json:"normalRiskCoverageMin"`
	NormalRiskBonus       float64 `json:"normalRiskBonus"`
	NormalRiskPenalty     float64 `json:"normalRiskPenalty"`
	LowRiskCoverageMin    float64 `json:"lowRiskCoverageMin"`
	LowRiskBonus          float64 `json:"lowRiskBonus"`

	// Scores are clamped to [Floor, Ceiling] so every surfaced match sits
	// in a plausible strength band rather than raw 0-100.
	ScoreFloor   float64 `json:"scoreFloor"`
	ScoreCeiling float64 `json:"scoreCeiling"`

	// Annual-premium thresholds backing the coarse budget tiers.
	BudgetTierLow    float64 `json:"budgetTierLow"`
	BudgetTierMedium float64 `json:"budgetTierMedium"`
	BudgetTierHigh   float64 `json:"budgetTierHigh"`

	// Priority weight multipliers applied to the budget and coverage
	// adjustments. Balanced keeps both at 1.0.
	CheapBudgetWeight      float64 `json:"cheapBudgetWeight"`
	CheapCoverageWeight    float64 `json:"cheapCoverageWeight"`
	CoverageBudgetWeight   float64 `json:"coverageBudgetWeight"`
	CoverageCoverageWeight float64 `json:"coverageCoverageWeight"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultFraudConfig returns the observed source defaults.
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		HighAmountThreshold: 800000,
		RapidClaimMinDays:   1,
	}
}

// DefaultPremiumConfig returns the young-adult discount / senior surcharge
// bands implied by the source material.
func DefaultPremiumConfig() PremiumConfig {
	return PremiumConfig{
		YoungAgeMax:   30,
		SeniorAgeMin:  50,
		YoungFactor:   0.90,
		NeutralFactor: 1.00,
		SeniorFactor:  1.25,
	}
}

// DefaultRankingConfig returns the observed scoring constants.
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{
		BaseScore:     30,
		BudgetBonus:   25,
		BudgetPenalty: 15,

		HighRiskCoverageMin:   1000000,
		HighRiskBonus:         30,
		HighRiskPenalty:       10,
		NormalRiskCoverageMin: 500000,
		NormalRiskBonus:       25,
		NormalRiskPenalty:     5,
		LowRiskCoverageMin:    200000,
		LowRiskBonus:          20,

		ScoreFloor:   40,
		ScoreCeiling: 95,

		BudgetTierLow:    15000,
		BudgetTierMedium: 30000,
		BudgetTierHigh:   60000,

		CheapBudgetWeight:      1.4,
		CheapCoverageWeight:    0.8,
		CoverageBudgetWeight:   0.8,
		CoverageCoverageWeight: 1.4,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:    TierCommunity,
		Fraud:   DefaultFraudConfig(),
		Premium: DefaultPremiumConfig(),
		Ranking: DefaultRankingConfig(),
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

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
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
