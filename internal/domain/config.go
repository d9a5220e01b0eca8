package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines which backends are used (KESTREL_TIER, read before the profile is chosen)
	Tier Tier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus"`

	// Analysis Service and ingestion
	Analysis AnalysisConfig `yaml:"analysis"`
	Ingest   IngestConfig   `yaml:"ingest"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host" env:"KESTREL_HOST"`
	Port         int    `yaml:"port" env:"KESTREL_PORT"`
	ReadTimeout  int    `yaml:"read_timeout" env:"KESTREL_READ_TIMEOUT"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" env:"KESTREL_WRITE_TIMEOUT"` // seconds

	// MaxUploadBytes caps the size of an uploaded batch file.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"KESTREL_MAX_UPLOAD_BYTES"`
}

// AnalysisConfig points at the external Analysis Service.
type AnalysisConfig struct {
	BaseURL string        `yaml:"base_url" env:"KESTREL_ANALYSIS_URL"`
	Timeout time.Duration `yaml:"timeout" env:"KESTREL_ANALYSIS_TIMEOUT"`
}

// IngestConfig controls how batches become cases.
type IngestConfig struct {
	// Case ids are "<IDPrefix>-<IDBase+index>".
	IDPrefix string `yaml:"id_prefix" env:"KESTREL_CASE_ID_PREFIX"`
	IDBase   int    `yaml:"id_base" env:"KESTREL_CASE_ID_BASE"`

	// SeedDemo loads generated cases when nothing has been persisted yet.
	SeedDemo      bool `yaml:"seed_demo" env:"KESTREL_SEED_DEMO"`
	DemoCaseCount int  `yaml:"demo_case_count" env:"KESTREL_DEMO_CASES"`

	// Async ingestion
	AsyncWorker bool `yaml:"async_worker" env:"KESTREL_ASYNC_WORKER"`
	WorkerCount int  `yaml:"worker_count" env:"KESTREL_WORKER_COUNT"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"KESTREL_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"KESTREL_LOG_FORMAT"` // json, text
	Debug  bool   `yaml:"-" env:"KESTREL_DEBUG"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"KESTREL_TRACING"`
	ServiceName string `yaml:"service_name" env:"KESTREL_SERVICE_NAME"`
}

// Tier represents the deployment profile.
type Tier string

const (
	// TierCommunity runs on SQLite + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   180,
			MaxUploadBytes: 32 << 20,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ViewTTL:      10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Analysis: AnalysisConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 2 * time.Minute,
		},
		Ingest: IngestConfig{
			IDPrefix:      "NIC-2025",
			IDBase:        1000,
			DemoCaseCount: 60,
			WorkerCount:   2,
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
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresUser:    "kestrel",
		PostgresDB:      "kestrel",
		PostgresSSLMode: "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ViewTTL:        10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Ingest.AsyncWorker = true
	cfg.Ingest.WorkerCount = 5
	cfg.Tracing.Enabled = true
	return cfg
}
