package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server
	APIPort int

	// Sync engine
	SchedulerInterval  time.Duration
	DefaultPollSecs    int
	MaxSyncBackoff     time.Duration
	SyncRetryBaseDelay time.Duration

	// Dispatch
	NATSURL          string
	DispatchSubject  string
	DispatchDisabled bool

	// Provider credentials
	GoogleClientID       string
	GoogleClientSecret   string
	GooglePubSubTopic    string
	GraphClientID        string
	GraphClientSecret    string
	GraphTenantID        string
	WebhookPublicBaseURL string

	// Storage
	BodyStoragePath string

	// Logging
	LogLevel string

	// Security
	APIKey         string
	AllowedOrigins string
	AppEnv         string

	// Rate Limiting
	RateLimitRequests float64
	RateLimitBurst    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	// API_PORT (default: 8080)
	apiPort := os.Getenv("API_PORT")
	if apiPort == "" {
		cfg.APIPort = 8080
	} else {
		port, err := strconv.Atoi(apiPort)
		if err != nil {
			return nil, fmt.Errorf("API_PORT must be a valid integer: %w", err)
		}
		cfg.APIPort = port
	}

	// SCHEDULER_INTERVAL_SECS (default: 30)
	schedulerSecs := 30
	if v := os.Getenv("SCHEDULER_INTERVAL_SECS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SCHEDULER_INTERVAL_SECS must be a valid integer: %w", err)
		}
		schedulerSecs = secs
	}
	cfg.SchedulerInterval = time.Duration(schedulerSecs) * time.Second

	// DEFAULT_POLL_INTERVAL_SECS (default: 300)
	cfg.DefaultPollSecs = 300
	if v := os.Getenv("DEFAULT_POLL_INTERVAL_SECS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DEFAULT_POLL_INTERVAL_SECS must be a valid integer: %w", err)
		}
		cfg.DefaultPollSecs = secs
	}

	// MAX_SYNC_BACKOFF_SECS (default: 3600)
	maxBackoffSecs := 3600
	if v := os.Getenv("MAX_SYNC_BACKOFF_SECS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MAX_SYNC_BACKOFF_SECS must be a valid integer: %w", err)
		}
		maxBackoffSecs = secs
	}
	cfg.MaxSyncBackoff = time.Duration(maxBackoffSecs) * time.Second

	// SYNC_RETRY_BASE_DELAY_MS (default: 500)
	retryBaseMS := 500
	if v := os.Getenv("SYNC_RETRY_BASE_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SYNC_RETRY_BASE_DELAY_MS must be a valid integer: %w", err)
		}
		retryBaseMS = ms
	}
	cfg.SyncRetryBaseDelay = time.Duration(retryBaseMS) * time.Millisecond

	// NATS_URL (default: nats://localhost:4222); DISPATCH_DISABLED=true runs
	// the engine without a broker (dev mode, events are logged and dropped)
	cfg.NATSURL = os.Getenv("NATS_URL")
	if cfg.NATSURL == "" {
		cfg.NATSURL = "nats://localhost:4222"
	}
	cfg.DispatchSubject = os.Getenv("DISPATCH_SUBJECT")
	if cfg.DispatchSubject == "" {
		cfg.DispatchSubject = "crm.email.classify"
	}
	if v := os.Getenv("DISPATCH_DISABLED"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DISPATCH_DISABLED must be a valid boolean: %w", err)
		}
		cfg.DispatchDisabled = disabled
	}

	// Provider credentials (validated only when the matching driver is used)
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GooglePubSubTopic = os.Getenv("GOOGLE_PUBSUB_TOPIC")
	cfg.GraphClientID = os.Getenv("GRAPH_CLIENT_ID")
	cfg.GraphClientSecret = os.Getenv("GRAPH_CLIENT_SECRET")
	cfg.GraphTenantID = os.Getenv("GRAPH_TENANT_ID")
	cfg.WebhookPublicBaseURL = os.Getenv("WEBHOOK_PUBLIC_BASE_URL")

	// BODY_STORAGE_PATH (default: ./bodies)
	cfg.BodyStoragePath = os.Getenv("BODY_STORAGE_PATH")
	if cfg.BodyStoragePath == "" {
		cfg.BodyStoragePath = "./bodies"
	}

	// LOG_LEVEL (default: info)
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// Security configuration
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.AppEnv = os.Getenv("APP_ENV")
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}

	// Rate limiting configuration
	if rps := os.Getenv("RATE_LIMIT_REQUESTS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimitRequests = v
		}
	} else {
		cfg.RateLimitRequests = 10.0
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimitBurst = v
		}
	} else {
		cfg.RateLimitBurst = 20
	}

	return cfg, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Production-specific validation
	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("SchedulerInterval must be positive")
	}
	if c.DefaultPollSecs <= 0 {
		return fmt.Errorf("DefaultPollSecs must be positive")
	}
	if c.MaxSyncBackoff < c.SchedulerInterval {
		return fmt.Errorf("MaxSyncBackoff must be at least SchedulerInterval")
	}
	if c.BodyStoragePath == "" {
		return fmt.Errorf("BodyStoragePath cannot be empty")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required in production")
	}

	if c.AllowedOrigins == "" {
		return fmt.Errorf("ALLOWED_ORIGINS is required in production")
	}

	// Check for wildcard in production
	if strings.Contains(c.AllowedOrigins, "*") {
		return fmt.Errorf("wildcard (*) origins are not allowed in production")
	}

	// Check for sslmode=disable in database URL
	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	if c.WebhookPublicBaseURL == "" {
		return fmt.Errorf("WEBHOOK_PUBLIC_BASE_URL is required in production")
	}

	return nil
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.Duration("scheduler_interval", c.SchedulerInterval),
		slog.Int("default_poll_secs", c.DefaultPollSecs),
		slog.Duration("max_sync_backoff", c.MaxSyncBackoff),
		slog.String("nats_url", c.NATSURL),
		slog.String("dispatch_subject", c.DispatchSubject),
		slog.Bool("dispatch_disabled", c.DispatchDisabled),
		slog.String("body_storage_path", c.BodyStoragePath),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Bool("allowed_origins_set", c.AllowedOrigins != ""),
		slog.Float64("rate_limit_rps", c.RateLimitRequests),
		slog.Int("rate_limit_burst", c.RateLimitBurst),
	)
}
