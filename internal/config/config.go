// Package config loads fleetcare's process configuration once at startup.
//
// Values are resolved in priority order:
//
//	OS environment -> .env file -> AWS SSM Parameter Store
//
// A missing required value or a malformed one fails startup.
package config

import "time"

// Config is the top-level configuration. Binaries hand each component only
// the section it needs.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"fleetcare"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database      DatabaseConfig
	AWS           AWSConfig
	Advisory      AdvisoryConfig
	Scheduler     SchedulerConfig
	Server        ServerConfig
	Observability ObservabilityConfig

	// Build is injected via ldflags, not the environment.
	Build BuildInfo
}

// DatabaseConfig holds the Postgres DSN and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	ConnectTimeout  time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"5s"`
	MaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
}

// AWSConfig holds AWS region and resource identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// NotificationQueue is the SQS queue receiving overdue, upcoming and
	// completed events. Empty disables notifications.
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"omitempty,url"`
	// CompressThreshold is the payload size above which events are
	// zstd-compressed.
	CompressThreshold int `envconfig:"SQS_COMPRESS_THRESHOLD" default:"32768" validate:"min=0"`

	// EndpointURL points the SDK at LocalStack. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AdvisoryConfig configures the optional narrative generator.
type AdvisoryConfig struct {
	Enabled   bool          `envconfig:"ADVISORY_ENABLED" default:"false"`
	BaseURL   string        `envconfig:"ADVISORY_BASE_URL" validate:"omitempty,url"`
	APIKey    SecretString  `envconfig:"ADVISORY_API_KEY"`
	Model     string        `envconfig:"ADVISORY_MODEL" default:"maintenance-narrator"`
	MaxTokens int           `envconfig:"ADVISORY_MAX_TOKENS" default:"300" validate:"min=1"`
	Timeout   time.Duration `envconfig:"ADVISORY_TIMEOUT" default:"8s"`

	BreakerFailures    uint32        `envconfig:"ADVISORY_BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"ADVISORY_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// SchedulerConfig tunes a maintenance run.
type SchedulerConfig struct {
	WindowDays         int           `envconfig:"RISK_WINDOW_DAYS" default:"30" validate:"min=1,max=366"`
	Concurrency        int           `envconfig:"RUN_CONCURRENCY" default:"8" validate:"min=1,max=256"`
	InspectionLeadTime time.Duration `envconfig:"INSPECTION_LEAD_TIME" default:"48h"`
	UpcomingWindowDays int           `envconfig:"UPCOMING_WINDOW_DAYS" default:"7" validate:"min=1"`

	StoreTimeout    time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"5s"`
	NotifyTimeout   time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`
}

// ServerConfig configures cmd/ops-server.
type ServerConfig struct {
	Port        string       `envconfig:"PORT" default:"8080"`
	AdminAPIKey SecretString `envconfig:"ADMIN_API_KEY"`
}

// ObservabilityConfig holds metrics settings.
type ObservabilityConfig struct {
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"Fleetcare"`
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH_METRICS" default:"true"`
	EnablePrometheus bool   `envconfig:"ENABLE_PROMETHEUS_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes loading failures.
type ConfigErrorType string

const (
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
