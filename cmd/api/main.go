// Package main is the entry point for the deedhive API server.
//
// It loads configuration, connects the database pool, wires the repositories
// and domain services into the HTTP handlers, and starts serving. In Lambda
// mode (detected via the runtime environment) the chi router is bridged to
// API Gateway through the chi adapter; locally it runs as a standard HTTP
// server with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/jackc/pgx/v5/pgxpool"

	"deedhive/internal/api/handlers"
	"deedhive/internal/config"
	"deedhive/internal/core"
	"deedhive/internal/db"
	"deedhive/internal/external"
	"deedhive/internal/metrics"
	"deedhive/internal/queue"
	"deedhive/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("deedhive API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	// Database pool.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	// AWS clients.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)
	cwClient := cloudwatch.NewFromConfig(awsCfg)
	metricsPub := metrics.NewCloudWatchPublisher(cwClient, cfg.AWS.MetricNamespace, logger)

	// Repositories.
	actionRepo := db.NewActionRepository(pool)
	userRepo := db.NewUserRepository(pool)
	assignmentRepo := db.NewAssignmentRepository(pool)
	historyRepo := db.NewHistoryRepository(pool)
	notificationLogRepo := db.NewNotificationLogRepository(pool)

	// Domain services.
	engine := scheduler.NewRotationEngine(scheduler.RotationEngineConfig{
		Assignments: assignmentRepo,
		History:     historyRepo,
		Catalog:     actionRepo,
		Logger:      logger,
	})
	coordinator := scheduler.NewBulkRotationCoordinator(scheduler.BulkRotationCoordinatorConfig{
		Users:      userRepo,
		Rotator:    engine,
		Stats:      metricsPub,
		Logger:     logger,
		BatchSize:  cfg.Rotation.BatchSize,
		TimeBudget: cfg.Rotation.TimeBudget,
	})

	pushClient := external.NewOneSignalClient(
		&http.Client{Timeout: 30 * time.Second},
		external.OneSignalClientConfig{
			AppID:      cfg.Push.AppID,
			RESTAPIKey: cfg.Push.RESTAPIKey,
			BaseURL:    cfg.Push.BaseURL,
			Logger:     logger,
		},
	)
	notifier := scheduler.NewNotificationScheduler(scheduler.NotificationSchedulerConfig{
		Users:       userRepo,
		Ledger:      notificationLogRepo,
		Catalog:     actionRepo,
		Push:        pushClient,
		Stats:       metricsPub,
		Logger:      logger,
		WindowStart: cfg.Notification.WindowStartHour,
		WindowEnd:   cfg.Notification.WindowEndHour,
	})

	rotationTrigger := queue.NewRotationTrigger(sqsClient, cfg.AWS.RotationQueueURL, logger)

	// HTTP server.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	rotationHandler := handlers.NewRotationHandler(engine, coordinator, rotationTrigger, srv.Validator, logger)
	notificationHandler := handlers.NewNotificationHandler(notifier, srv.Validator, logger)
	actionHandler := handlers.NewActionHandler(actionRepo, assignmentRepo, srv.Validator, logger)
	assignmentHandler := handlers.NewAssignmentHandler(assignmentRepo, actionRepo, srv.Validator, logger)
	userHandler := handlers.NewUserHandler(userRepo, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		rotationHandler.RegisterRoutes,
		notificationHandler.RegisterRoutes,
		actionHandler.RegisterRoutes,
		assignmentHandler.RegisterRoutes,
		userHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda bridges API Gateway proxy events to the chi router.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("starting in Lambda mode")
	adapter := chiadapter.New(srv.Router())
	lambda.Start(adapter.ProxyWithContext)
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
