package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"deedhive/internal/types"
)

// mockSQSSender records SendMessage calls for verification.
type mockSQSSender struct {
	inputs  []*sqs.SendMessageInput
	sendErr error
}

func (m *mockSQSSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.inputs = append(m.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestTriggerRotationSendsMessage(t *testing.T) {
	sender := &mockSQSSender{}
	trigger := NewRotationTrigger(sender, "https://sqs.test/rotation", testLogger())

	err := trigger.TriggerRotation(context.Background(), "user-42", "skip_requested")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.inputs) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.inputs))
	}

	input := sender.inputs[0]
	if *input.QueueUrl != "https://sqs.test/rotation" {
		t.Errorf("expected queue URL preserved, got %q", *input.QueueUrl)
	}

	var msg types.RotationMessage
	if err := json.Unmarshal([]byte(*input.MessageBody), &msg); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if msg.UserID != "user-42" {
		t.Errorf("expected user_id user-42, got %q", msg.UserID)
	}
	if msg.Reason != "skip_requested" {
		t.Errorf("expected reason skip_requested, got %q", msg.Reason)
	}
	if msg.MessageID == "" {
		t.Error("expected a generated message ID")
	}
	if msg.RequestedAt.IsZero() {
		t.Error("expected requested_at set")
	}

	attr, ok := input.MessageAttributes["reason"]
	if !ok || *attr.StringValue != "skip_requested" {
		t.Errorf("expected reason attribute, got %v", input.MessageAttributes)
	}
}

func TestTriggerRotationSendFailure(t *testing.T) {
	sender := &mockSQSSender{sendErr: fmt.Errorf("simulated SQS failure")}
	trigger := NewRotationTrigger(sender, "https://sqs.test/rotation", testLogger())

	err := trigger.TriggerRotation(context.Background(), "user-42", "skip_requested")
	if err == nil {
		t.Fatal("expected error when SQS send fails")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamQueue {
		t.Errorf("expected code %q, got %q", types.ErrCodeUpstreamQueue, appErr.Code)
	}
}
