// Package main is the entry point for the Rotation Worker Lambda function.
//
// The worker consumes targeted rotation requests from the rotation SQS
// queue, enqueued by the API when a client asks for a fresh deed without
// waiting on the archive-and-reassign cycle inline. Each message names one
// user; the worker drives the rotation engine for that user.
//
// Lambda SQS integration uses partial batch responses: messages that fail
// processing are returned in batchItemFailures so SQS retries only those.
// Malformed message bodies are acknowledged without retry since they can
// never succeed.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"

	"deedhive/internal/config"
	"deedhive/internal/db"
	"deedhive/internal/scheduler"
	"deedhive/internal/types"
)

// Handler holds the dependencies for the rotation worker Lambda handler.
type Handler struct {
	engine *scheduler.RotationEngine
	logger *slog.Logger
}

// Handle processes an SQS event containing one or more rotation messages.
// Each message is processed independently; one failure never blocks the
// rest of the batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to process rotation message",
				"sqs_message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage rotates the single user a message names.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.RotationMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.ErrorContext(ctx, "malformed rotation message, dropping",
			"sqs_message_id", record.MessageId,
			"error", err.Error(),
		)
		// Parse failures are permanent; ACK so SQS does not retry.
		return nil
	}
	if msg.UserID == "" {
		h.logger.ErrorContext(ctx, "rotation message missing user_id, dropping",
			"message_id", msg.MessageID,
		)
		return nil
	}

	logger := h.logger.With(
		"message_id", msg.MessageID,
		"user_id", msg.UserID,
		"reason", msg.Reason,
	)
	logger.InfoContext(ctx, "processing rotation message")

	result, err := h.engine.Rotate(ctx, msg.UserID)
	if err != nil {
		return err
	}

	newActionID := ""
	if result.NewAssignment != nil {
		newActionID = result.NewAssignment.ActionID
	}
	logger.InfoContext(ctx, "rotation complete",
		"archived_count", result.ArchivedCount,
		"new_action_id", newActionID,
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("rotation worker Lambda initializing (cold start)")

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	engine := scheduler.NewRotationEngine(scheduler.RotationEngineConfig{
		Assignments: db.NewAssignmentRepository(pool),
		History:     db.NewHistoryRepository(pool),
		Catalog:     db.NewActionRepository(pool),
		Logger:      logger,
	})

	handler := &Handler{engine: engine, logger: logger}

	logger.Info("rotation worker Lambda initialized")

	lambda.Start(handler.Handle)
}
