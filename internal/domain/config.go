package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Scoring holds the tunable verdict and anomaly parameters
	Scoring ScoringConfig `json:"scoring"`

	// CatalogDir is the directory of trusted reference images
	CatalogDir string `json:"catalogDir"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ScoringConfig holds the tunable parameters that cross the API boundary.
// Requests may override any of them per call; these are the defaults.
type ScoringConfig struct {
	// DistThreshold is the max Hamming distance for an authentic image match (0-64).
	DistThreshold int `json:"distThreshold"`

	// SimThreshold is the min similarity percent for an authentic image match (0-100).
	SimThreshold float64 `json:"simThreshold"`

	// ReviewGrace widens the review band below SimThreshold by this many
	// similarity points. Kept configurable pending product-owner confirmation
	// of the historical value.
	ReviewGrace float64 `json:"reviewGrace"`

	// Contamination is the expected anomaly fraction of a batch (0-1).
	Contamination float64 `json:"contamination"`

	// Seed drives the anomaly model's internal randomness.
	Seed int64 `json:"seed"`
}

// Preset names accepted by the check API.
const (
	PresetBalanced = "Balanced"
	PresetStrict   = "Strict"
	PresetLenient  = "Lenient"
)

// PresetScoring returns the scoring parameters for a named preset.
// Unknown names fall back to Balanced.
func PresetScoring(name string) ScoringConfig {
	switch name {
	case PresetStrict:
		return ScoringConfig{DistThreshold: 8, SimThreshold: 88, ReviewGrace: 8, Contamination: 0.05, Seed: 42}
	case PresetLenient:
		return ScoringConfig{DistThreshold: 16, SimThreshold: 70, ReviewGrace: 8, Contamination: 0.10, Seed: 42}
	default:
		return ScoringConfig{DistThreshold: 12, SimThreshold: 80, ReviewGrace: 8, Contamination: 0.07, Seed: 42}
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
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
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:       TierCommunity,
		Scoring:    PresetScoring(PresetBalanced),
		CatalogDir: "./data/catalog",
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
