package types

import "time"

// RotationMessage is the SQS payload for a targeted single-user rotation
// request. The API enqueues one when a client asks for a fresh deed without
// waiting on the rotation to run inline; the rotation worker consumes it and
// drives the engine. JSON tags use snake_case to match the queue contract.
type RotationMessage struct {
	// MessageID correlates the enqueue with worker-side processing.
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`

	// Reason records what triggered the rotation ("api_request",
	// "try_another"). Informational; the worker logs it.
	Reason string `json:"reason,omitempty"`

	RequestedAt time.Time `json:"requested_at"`
}
