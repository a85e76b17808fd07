package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	// Database URLs
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Upstreams
	BallDontLieAPIKey        string
	BallDontLieURL           string
	BallDontLieRatePerMinute int
	NewsFeeds                []string
	InjuryReportURL          string
	NewsCacheTTL             time.Duration
	NewsDays                 int

	// Engine
	EngineProvider string
	EngineModel    string
	EngineAPIKey   string
	EngineBaseURL  string
	AgentID        string

	// Planning
	PredictionLead time.Duration
	DueLookahead   time.Duration
	TooLate        time.Duration
	MinSlack       time.Duration

	// Emergency sweep
	EmergencyHorizon time.Duration
	EmergencyDelay   time.Duration

	// Loops
	GenerationInterval   time.Duration
	IngestionInterval    time.Duration
	EmergencyInterval    time.Duration
	IngestionHorizonDays int
	RunOnStart           bool

	// Timeouts
	GenerationTimeout time.Duration
	FetchTimeout      time.Duration

	// Retry policy
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMultiplier  float64

	// Worker pool
	WorkerCount int
	QueueSize   int

	// Attempt journal
	JournalBatchSize     int
	JournalFlushInterval time.Duration
}

// Load loads configuration from environment variables.
// It returns an error if critical configuration is missing or the timing
// parameters are inconsistent.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		ClickHouseURL: getEnv("CLICKHOUSE_URL", ""),

		BallDontLieAPIKey:        getEnv("BALLDONTLIE_API_KEY", ""),
		BallDontLieURL:           getEnv("BALLDONTLIE_URL", "https://api.balldontlie.io/v1"),
		BallDontLieRatePerMinute: getEnvInt("BALLDONTLIE_RATE_PER_MINUTE", 30),
		NewsFeeds:                getEnvList("NEWS_FEEDS", nil),
		InjuryReportURL:          getEnv("INJURY_REPORT_URL", ""),
		NewsCacheTTL:             getEnvDuration("NEWS_CACHE_TTL", time.Hour),
		NewsDays:                 getEnvInt("NEWS_DAYS", 3),

		EngineProvider: getEnv("ENGINE_PROVIDER", "openai"),
		EngineModel:    getEnv("ENGINE_MODEL", ""),
		EngineAPIKey:   getEnv("ENGINE_API_KEY", ""),
		EngineBaseURL:  getEnv("ENGINE_BASE_URL", ""),
		AgentID:        getEnv("AGENT_ID", "simple-llm-v1"),

		PredictionLead: getEnvDuration("PREDICTION_LEAD", time.Hour),
		DueLookahead:   getEnvDuration("DUE_LOOKAHEAD", 15*time.Minute),
		TooLate:        getEnvDuration("TOO_LATE", 10*time.Minute),
		MinSlack:       getEnvDuration("MIN_SLACK", 30*time.Minute),

		EmergencyHorizon: getEnvDuration("EMERGENCY_HORIZON", 3*time.Hour),
		EmergencyDelay:   getEnvDuration("EMERGENCY_DELAY", 5*time.Second),

		GenerationInterval:   getEnvDuration("GENERATION_INTERVAL", time.Minute),
		IngestionInterval:    getEnvDuration("INGESTION_INTERVAL", 6*time.Hour),
		EmergencyInterval:    getEnvDuration("EMERGENCY_INTERVAL", 15*time.Minute),
		IngestionHorizonDays: getEnvInt("INGESTION_HORIZON_DAYS", 3),
		RunOnStart:           getEnvBool("RUN_ON_START", true),

		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 2*time.Minute),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 20*time.Second),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMultiplier:  getEnvFloat("RETRY_MULTIPLIER", 2),

		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		QueueSize:   getEnvInt("QUEUE_SIZE", 256),

		JournalBatchSize:     getEnvInt("JOURNAL_BATCH_SIZE", 500),
		JournalFlushInterval: getEnvDuration("JOURNAL_FLUSH_INTERVAL", 5*time.Second),
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
		return nil, err
	}
	if cfg.RedisURL, err = getEnvRequired("REDIS_URL"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects timing and sizing combinations the planner and
// supervisor cannot work with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.PredictionLead > 0, "PREDICTION_LEAD must be positive")
	check(c.DueLookahead > 0, "DUE_LOOKAHEAD must be positive")
	check(c.TooLate > 0 && c.TooLate <= c.DueLookahead, "TOO_LATE must be in (0, DUE_LOOKAHEAD]")
	check(c.DueLookahead <= c.PredictionLead, "DUE_LOOKAHEAD must not extend past game start")
	check(c.MinSlack >= 0, "MIN_SLACK must not be negative")
	check(c.EmergencyHorizon > 0, "EMERGENCY_HORIZON must be positive")
	check(c.EmergencyDelay >= 0, "EMERGENCY_DELAY must not be negative")
	check(c.GenerationInterval > 0, "GENERATION_INTERVAL must be positive")
	check(c.IngestionInterval > 0, "INGESTION_INTERVAL must be positive")
	check(c.EmergencyInterval > 0, "EMERGENCY_INTERVAL must be positive")
	check(c.IngestionHorizonDays > 0, "INGESTION_HORIZON_DAYS must be positive")
	check(c.GenerationTimeout > 0, "GENERATION_TIMEOUT must be positive")
	check(c.FetchTimeout > 0 && c.FetchTimeout <= c.GenerationTimeout, "FETCH_TIMEOUT must be in (0, GENERATION_TIMEOUT]")
	check(c.RetryMaxAttempts >= 1, "RETRY_MAX_ATTEMPTS must be at least 1")
	check(c.RetryBaseDelay >= 0, "RETRY_BASE_DELAY must not be negative")
	check(c.RetryMultiplier >= 1, "RETRY_MULTIPLIER must be at least 1")
	check(c.WorkerCount > 0, "WORKER_COUNT must be positive")
	check(c.QueueSize > 0, "QUEUE_SIZE must be positive")
	check(c.AgentID != "", "AGENT_ID must not be empty")
	switch strings.ToLower(c.EngineProvider) {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("ENGINE_PROVIDER %q is not supported", c.EngineProvider))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
