package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the engine's runtime configuration. Environment variables
// are parsed from the RVBBIT_ prefix (e.g. RVBBIT_HTTP_PORT).
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP front door (SQL surface + health).
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// SQLEngine selects the SQL execution backend: sqlite (in-process) or
	// postgres (external, shared catalog).
	SQLEngine   string `envconfig:"SQL_ENGINE" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"rvbbit.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Unified log sink: memory (process-local, for tests/dev) or postgres
	// (durable append-only log rows per §6.2).
	LogSink string `envconfig:"LOG_SINK" default:"memory"`

	// LLM provider settings, shared by every cell.
	LLMProvider string `envconfig:"LLM_PROVIDER" default:"openai-compatible"`
	LLMBaseURL  string `envconfig:"LLM_BASE_URL" default:"http://localhost:11434/v1"`
	LLMAPIKey   string `envconfig:"LLM_API_KEY" default:""`
	LLMModel    string `envconfig:"LLM_MODEL" default:"llama3.1"`

	// Embedding provider, used by embed_batch/vector_search UDFs.
	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:"mxbai-embed-large"`

	// Vector backend (Weaviate), tenant-scoped per caller_id.
	VectorStore string `envconfig:"VECTOR_STORE" default:"weaviate"`
	WeaviateURL string `envconfig:"WEAVIATE_URL" default:"localhost:8080"`

	// UDF result cache: bounded LRU with TTL eviction (§6.3).
	UDFCacheSize int `envconfig:"UDF_CACHE_SIZE" default:"4096"`
	UDFCacheTTL  int `envconfig:"UDF_CACHE_TTL_SECONDS" default:"300"`

	// Bounded concurrency for a cell's concurrent tool calls within one turn
	// and for the background scheduler's worker count.
	MaxParallelWorkers int `envconfig:"MAX_PARALLEL_WORKERS" default:"8"`

	// Background job queue backend: chan (in-process) or kafka (durable).
	BackgroundQueue  string `envconfig:"BACKGROUND_QUEUE" default:"chan"`
	KafkaBrokers     string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic       string `envconfig:"KAFKA_TOPIC" default:"rvbbit-jobs"`

	// Cascade document roots, searched in order.
	CascadeDir string `envconfig:"CASCADE_DIR" default:"./cascades"`
	ToolDir    string `envconfig:"TOOL_DIR" default:"./tools"`

	// Maximum sub-cascade nesting depth (§4.6 spawn guard).
	MaxCascadeDepth int `envconfig:"MAX_CASCADE_DEPTH" default:"8"`

	// Testing knobs.
	TestingUseEmulator bool `envconfig:"TESTING_USE_EMULATOR" default:"true"`
	TestingParallel    bool `envconfig:"TESTING_PARALLEL" default:"true"`
}

// ResolveDefaults validates cross-field choices and derives values left as
// "auto" or empty.
func (c *Config) ResolveDefaults() error {
	allowedSQL := map[string]bool{"sqlite": true, "postgres": true}
	if !allowedSQL[c.SQLEngine] {
		return fmt.Errorf("unsupported SQL_ENGINE: %s", c.SQLEngine)
	}
	if c.SQLEngine == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN required when SQL_ENGINE=postgres")
	}

	allowedLogSink := map[string]bool{"memory": true, "postgres": true}
	if !allowedLogSink[c.LogSink] {
		return fmt.Errorf("unsupported LOG_SINK: %s", c.LogSink)
	}
	if c.LogSink == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN required when LOG_SINK=postgres")
	}

	allowedQueue := map[string]bool{"chan": true, "kafka": true}
	if !allowedQueue[c.BackgroundQueue] {
		return fmt.Errorf("unsupported BACKGROUND_QUEUE: %s", c.BackgroundQueue)
	}
	if c.BackgroundQueue == "kafka" && c.KafkaBrokers == "" {
		return fmt.Errorf("KAFKA_BROKERS required when BACKGROUND_QUEUE=kafka")
	}

	if c.MaxParallelWorkers <= 0 {
		c.MaxParallelWorkers = 8
	}
	if c.MaxCascadeDepth <= 0 {
		c.MaxCascadeDepth = 8
	}
	return nil
}

// New parses environment variables under the RVBBIT_ prefix into a Config
// and resolves its derived defaults.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("RVBBIT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("http_port", cfg.HTTPPort).
		Str("sql_engine", cfg.SQLEngine).
		Str("log_sink", cfg.LogSink).
		Str("llm_provider", cfg.LLMProvider).
		Str("embed_provider", cfg.EmbedProvider).
		Str("vector_store", cfg.VectorStore).
		Str("background_queue", cfg.BackgroundQueue).
		Int("max_parallel_workers", cfg.MaxParallelWorkers).
		Msg("configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config with in-process, dependency-free defaults
// suitable for unit and integration tests.
func NewForTesting() *Config {
	cfg := &Config{
		Environment:        EnvTesting,
		HTTPPort:           8080,
		SQLEngine:          "sqlite",
		SQLitePath:         ":memory:",
		LogSink:            "memory",
		LLMProvider:        "fake",
		EmbedProvider:      "fake",
		VectorStore:        "fake",
		UDFCacheSize:       128,
		UDFCacheTTL:        60,
		MaxParallelWorkers: 4,
		BackgroundQueue:    "chan",
		CascadeDir:         "./cascades",
		ToolDir:            "./tools",
		MaxCascadeDepth:    8,
		TestingUseEmulator: true,
		TestingParallel:    true,
	}
	return cfg
}

// IsTesting returns true if the environment is set to testing.
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server listen address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
