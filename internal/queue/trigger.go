// Package queue provides the SQS producer that dispatches targeted rotation
// requests to the rotation worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"deedhive/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// RotationTrigger enqueues single-user rotation requests. The bulk nightly
// rotation runs in-process; this path serves API-initiated rotations (a user
// skipping their deed) that should not block the HTTP response on the full
// archive-and-reassign cycle.
type RotationTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewRotationTrigger creates a new RotationTrigger sending to the given
// queue URL.
func NewRotationTrigger(client SQSSender, queueURL string, logger *slog.Logger) *RotationTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RotationTrigger{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// TriggerRotation enqueues a rotation request for one user. The reason tags
// the message for the worker's logs.
func (t *RotationTrigger) TriggerRotation(ctx context.Context, userID string, reason string) error {
	msg := types.RotationMessage{
		MessageID:   uuid.New().String(),
		UserID:      userID,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal rotation message", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to enqueue rotation for user %s", userID), err)
	}

	t.logger.InfoContext(ctx, "rotation message sent",
		"queue_url", t.queueURL,
		"message_id", msg.MessageID,
		"user_id", userID,
		"reason", reason,
	)
	return nil
}
