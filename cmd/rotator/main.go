// Package main is the entry point for the Rotator Lambda function.
//
// The Rotator runs on a nightly EventBridge schedule and fans the rotation
// engine out across every user: each user's active assignment is archived
// and a fresh action assigned. The run is bounded by a soft time budget so
// it always finishes inside the function timeout; users not reached tonight
// are picked up tomorrow.
//
// Cold start wires the database pool, CloudWatch metrics, the rotation
// engine, and the bulk coordinator. With APP_ENV=local the handler runs
// once directly instead of registering with the Lambda runtime.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"deedhive/internal/config"
	"deedhive/internal/db"
	"deedhive/internal/metrics"
	"deedhive/internal/scheduler"
)

// Handler holds the dependencies for the rotator Lambda handler.
type Handler struct {
	coordinator *scheduler.BulkRotationCoordinator
	logger      *slog.Logger
}

// Handle runs one bulk rotation sweep. Per-user failures are aggregated in
// the result; only a failure to enumerate users fails the invocation.
func (h *Handler) Handle(ctx context.Context) error {
	result, err := h.coordinator.RotateAll(ctx)
	if err != nil {
		return fmt.Errorf("bulk rotation: %w", err)
	}

	h.logger.InfoContext(ctx, "bulk rotation run finished",
		"success_count", result.SuccessCount,
		"error_count", result.ErrorCount,
	)
	for _, e := range result.Errors {
		h.logger.WarnContext(ctx, "user rotation failed",
			"user_id", e.UserID,
			"error", e.Message,
		)
	}
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("rotator Lambda initializing (cold start)")

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
	assignmentRepo := db.NewAssignmentRepository(pool)
	historyRepo := db.NewHistoryRepository(pool)

	engine := scheduler.NewRotationEngine(scheduler.RotationEngineConfig{
		Assignments: assignmentRepo,
		History:     historyRepo,
		Catalog:     actionRepo,
		Logger:      logger,
	})
	coordinator := scheduler.NewBulkRotationCoordinator(scheduler.BulkRotationCoordinatorConfig{
		Users:      userRepo,
		Rotator:    engine,
		Stats:      metrics.NewCloudWatchPublisher(cwClient, cfg.AWS.MetricNamespace, logger),
		Logger:     logger,
		BatchSize:  cfg.Rotation.BatchSize,
		TimeBudget: cfg.Rotation.TimeBudget,
	})

	handler := &Handler{coordinator: coordinator, logger: logger}

	logger.Info("rotator Lambda initialized",
		"batch_size", cfg.Rotation.BatchSize,
		"time_budget", cfg.Rotation.TimeBudget.String(),
	)

	// Local mode: run the sweep once instead of starting the Lambda runtime.
	if cfg.Environment == "local" {
		if err := handler.Handle(ctx); err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}
