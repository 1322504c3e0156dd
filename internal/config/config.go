// Package config defines the global configuration structure for the farewatch
// services. Configuration is loaded once at process initialization (Lambda Cold
// Start) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// on startup.
package config

import (
	"time"

	"farewatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"farewatch-service"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Search        SearchConfig
	Amadeus       AmadeusConfig
	SerpAPI       SerpAPIConfig
	Email         EmailConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	Feature       FeatureConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// AppBaseURL is the public web app origin used for deep links in emails (no trailing slash).
	AppBaseURL string `envconfig:"APP_BASE_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// TriggerQueueURL is the FIFO queue consumed by the trigger worker.
	TriggerQueueURL string `envconfig:"SQS_TRIGGER_QUEUE" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SearchConfig tunes the fare search loop and provider selection.
type SearchConfig struct {
	DefaultProvider string        `envconfig:"SEARCH_DEFAULT_PROVIDER" default:"amadeus" validate:"oneof=amadeus serpapi"`
	CallTimeout     time.Duration `envconfig:"SEARCH_CALL_TIMEOUT" default:"20s"`
	ResultCacheTTL  time.Duration `envconfig:"SEARCH_RESULT_CACHE_TTL" default:"10m"`
	ResultCacheSize int           `envconfig:"SEARCH_RESULT_CACHE_SIZE" default:"512"`
}

// AmadeusConfig holds credentials for the Amadeus Self-Service flight offers API.
type AmadeusConfig struct {
	BaseURL      string       `envconfig:"AMADEUS_BASE_URL" default:"https://test.api.amadeus.com" validate:"url"`
	ClientID     string       `envconfig:"AMADEUS_CLIENT_ID"`
	ClientSecret SecretString `envconfig:"AMADEUS_CLIENT_SECRET"`
	MaxOffers    int          `envconfig:"AMADEUS_MAX_OFFERS" default:"20"`
}

// SerpAPIConfig holds credentials for the SerpAPI Google Flights engine.
type SerpAPIConfig struct {
	BaseURL string       `envconfig:"SERPAPI_BASE_URL" default:"https://serpapi.com" validate:"url"`
	APIKey  SecretString `envconfig:"SERPAPI_API_KEY"`
}

// FeatureConfig holds emergency kill switches for system capabilities.
type FeatureConfig struct {
	EnableEmail bool `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	// Providers lists delivery backends in fallback order.
	Providers        []string     `envconfig:"EMAIL_PROVIDERS" default:"ses" validate:"min=1,dive,oneof=ses sendgrid smtp"`
	FromAddress      string       `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@farewatch.app" validate:"email"`
	FromName         string       `envconfig:"EMAIL_FROM_NAME" default:"FareWatch Alerts"`
	DefaultRecipient string       `envconfig:"EMAIL_DEFAULT_RECIPIENT" validate:"omitempty,email"`
	SendGridAPIKey   SecretString `envconfig:"SENDGRID_API_KEY"`
	SMTPHost         string       `envconfig:"SMTP_HOST"`
	SMTPPort         int          `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername     string       `envconfig:"SMTP_USERNAME"`
	SMTPPassword     SecretString `envconfig:"SMTP_PASSWORD"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"FareWatch"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
