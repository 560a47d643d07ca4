// Package config defines the global configuration structure for the deedhive
// backend. Configuration is loaded once at process initialization (function
// cold start) and is immutable thereafter. It follows 12-Factor App principles
// by strictly separating code from configuration.
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"
)

// Config is the top-level configuration struct for the deedhive backend.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server       ServerConfig
	Database     DatabaseConfig
	AWS          AWSConfig
	Push         PushConfig
	Rotation     RotationConfig
	Notification NotificationConfig
	Maintenance  MaintenanceConfig
}

// ServerConfig holds HTTP server and operator auth configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`

	// ServiceTokenHash is the bcrypt hash of the service token that cron
	// triggers and operators present as a bearer token. Empty disables auth
	// (local development only).
	ServiceTokenHash string `envconfig:"SERVICE_TOKEN_HASH"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// RotationQueueURL is the SQS queue for targeted single-user rotation
	// messages. Required only by the API (producer) and rotation worker
	// (consumer).
	RotationQueueURL string `envconfig:"SQS_ROTATION_QUEUE"`

	// MetricNamespace is the CloudWatch namespace for service counters.
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"DeedHive"`
}

// PushConfig holds the OneSignal push transport credentials.
type PushConfig struct {
	AppID      string `envconfig:"ONESIGNAL_APP_ID"`
	RESTAPIKey string `envconfig:"ONESIGNAL_REST_API_KEY"`

	// BaseURL is overridable for tests; defaults to the OneSignal API.
	BaseURL string `envconfig:"ONESIGNAL_BASE_URL" default:"https://onesignal.com/api/v1"`
}

// RotationConfig tunes the bulk rotation coordinator.
type RotationConfig struct {
	// BatchSize is both the partition size and the bound on per-batch
	// parallelism.
	BatchSize int `envconfig:"ROTATION_BATCH_SIZE" default:"50" validate:"min=1"`

	// TimeBudget is the soft wall-clock deadline checked between batches.
	// Kept under the host's 60s execution ceiling.
	TimeBudget time.Duration `envconfig:"ROTATION_TIME_BUDGET" default:"50s"`
}

// NotificationConfig tunes the daily notification sweep.
type NotificationConfig struct {
	// WindowStartHour and WindowEndHour bound the local-time delivery
	// window, inclusive. The default [9,11] is intentionally wide to
	// tolerate the hourly polling cadence of the scheduler.
	WindowStartHour int `envconfig:"NOTIFY_WINDOW_START" default:"9" validate:"min=0,max=23"`
	WindowEndHour   int `envconfig:"NOTIFY_WINDOW_END" default:"11" validate:"min=0,max=23"`
}

// MaintenanceConfig tunes the history retention task.
type MaintenanceConfig struct {
	// HistoryRetention is how long archived assignments stay queryable
	// before being exported and purged.
	HistoryRetention time.Duration `envconfig:"HISTORY_RETENTION" default:"4320h"` // 180 days

	// ArchiveBatchSize bounds rows exported per task invocation.
	ArchiveBatchSize int `envconfig:"ARCHIVE_BATCH_SIZE" default:"1000" validate:"min=1"`

	// ArchiveBucket is the S3 bucket history exports land in. Empty falls
	// back to the filesystem store at ArchiveDir (local development).
	ArchiveBucket string `envconfig:"ARCHIVE_BUCKET"`

	// ArchiveDir is where the filesystem archive store writes exports when
	// no bucket is configured.
	ArchiveDir string `envconfig:"ARCHIVE_DIR" default:"/tmp/deedhive-archive"`
}
