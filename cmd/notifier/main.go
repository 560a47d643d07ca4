// Package main is the entry point for the Notifier Lambda function.
//
// The Notifier is invoked by EventBridge schedules with small JSON payloads
// naming the task to run:
//
//	{"task": "process_notifications"}           // hourly
//	{"task": "archive_history"}                 // daily
//
// process_notifications runs the timezone-aware notification sweep; the
// optional test fields (test_mode, test_hour, test_user_id) mirror the HTTP
// endpoint's overrides for manual verification. archive_history exports
// expired rotation history to the archive store and purges it.
//
// Cold start wires the database pool, the OneSignal push client, CloudWatch
// metrics, and the archive store (S3 when ARCHIVE_BUCKET is set, local
// filesystem otherwise).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"deedhive/internal/config"
	"deedhive/internal/db"
	"deedhive/internal/external"
	"deedhive/internal/metrics"
	"deedhive/internal/scheduler"
)

// Handler holds the cold-start service configurations. Services are built
// per invocation so a payload ReferenceTime can override the clock.
type Handler struct {
	notifierCfg    scheduler.NotificationSchedulerConfig
	maintenanceCfg scheduler.HistoryMaintenanceConfig
	logger         *slog.Logger
}

// Handle routes the payload to the named task. The returned string
// summarizes the run for the invocation log.
func (h *Handler) Handle(ctx context.Context, payload scheduler.NotifierPayload) (string, error) {
	task := payload.Task
	if task == "" {
		task = scheduler.TaskProcessNotifications
	}
	h.logger.InfoContext(ctx, "notifier handler invoked",
		"task", string(task),
		"scheduled", payload.Scheduled,
	)

	var now func() time.Time
	if payload.ReferenceTime != nil {
		ref := payload.ReferenceTime.UTC()
		now = func() time.Time { return ref }
	}

	switch task {
	case scheduler.TaskProcessNotifications:
		cfg := h.notifierCfg
		cfg.Now = now
		result, err := scheduler.NewNotificationScheduler(cfg).Process(ctx, scheduler.ProcessInput{
			TestMode:   payload.TestMode,
			TestHour:   payload.TestHour,
			TestUserID: payload.TestUserID,
		})
		if err != nil {
			return "", fmt.Errorf("processing notifications: %w", err)
		}
		return fmt.Sprintf("notifications: %d sent, %d failed of %d",
			result.Successful, result.Failed, result.Total), nil

	case scheduler.TaskArchiveHistory:
		cfg := h.maintenanceCfg
		cfg.Now = now
		result, err := scheduler.NewHistoryMaintenance(cfg).Run(ctx)
		if err != nil {
			return "", fmt.Errorf("archiving history: %w", err)
		}
		return fmt.Sprintf("history: %d exported, %d deleted in %d batches",
			result.ExportedCount, result.DeletedCount, result.Batches), nil

	default:
		return "", fmt.Errorf("unknown task type: %q", task)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("notifier Lambda initializing (cold start)")

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	actionRepo := db.NewActionRepository(pool)
	userRepo := db.NewUserRepository(pool)
	historyRepo := db.NewHistoryRepository(pool)
	notificationLogRepo := db.NewNotificationLogRepository(pool)

	pushClient := external.NewOneSignalClient(
		&http.Client{Timeout: 30 * time.Second},
		external.OneSignalClientConfig{
			AppID:      cfg.Push.AppID,
			RESTAPIKey: cfg.Push.RESTAPIKey,
			BaseURL:    cfg.Push.BaseURL,
			Logger:     logger,
		},
	)

	var store scheduler.ArchiveStore
	if cfg.Maintenance.ArchiveBucket != "" {
		store = external.NewS3ArchiveStore(s3.NewFromConfig(awsCfg), cfg.Maintenance.ArchiveBucket)
	} else {
		store = external.NewFSArchiveStore(cfg.Maintenance.ArchiveDir)
	}

	handler := &Handler{
		notifierCfg: scheduler.NotificationSchedulerConfig{
			Users:       userRepo,
			Ledger:      notificationLogRepo,
			Catalog:     actionRepo,
			Push:        pushClient,
			Stats:       metrics.NewCloudWatchPublisher(cwClient, cfg.AWS.MetricNamespace, logger),
			Logger:      logger,
			WindowStart: cfg.Notification.WindowStartHour,
			WindowEnd:   cfg.Notification.WindowEndHour,
		},
		maintenanceCfg: scheduler.HistoryMaintenanceConfig{
			History:   historyRepo,
			Store:     store,
			Logger:    logger,
			Retention: cfg.Maintenance.HistoryRetention,
			BatchSize: cfg.Maintenance.ArchiveBatchSize,
		},
		logger: logger,
	}

	logger.Info("notifier Lambda initialized",
		"window_start", cfg.Notification.WindowStartHour,
		"window_end", cfg.Notification.WindowEndHour,
		"archive_bucket", cfg.Maintenance.ArchiveBucket,
	)

	lambda.Start(handler.Handle)
}
