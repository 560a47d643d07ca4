// Package scheduler implements the scheduled job services for the deedhive
// backend: the nightly rotation of daily deed assignments, the hourly push
// notification sweep, and history retention maintenance.
//
// This file defines the shared payload types for the scheduled function
// entrypoints. The NotifierPayload is the JSON structure sent by the cron
// rule to the notifier function; the Task constant determines which service
// method handles the invocation.
package scheduler

import "time"

// TaskType identifies which service a scheduled invocation should run.
// Each constant maps to a specific service method in the notifier
// multiplexer.
type TaskType string

const (
	// TaskProcessNotifications runs the daily notification sweep.
	TaskProcessNotifications TaskType = "process_notifications"
	// TaskArchiveHistory exports and purges expired history rows.
	TaskArchiveHistory TaskType = "archive_history"
)

// NotifierPayload is the JSON payload sent by the cron rule to the notifier
// function. An empty Task defaults to process_notifications so a bare
// scheduled invocation does the common thing.
type NotifierPayload struct {
	Task TaskType `json:"task,omitempty"`

	// Scheduled marks cron-originated invocations; echoed in the response
	// for observability only.
	Scheduled bool `json:"scheduled,omitempty"`

	// Test overrides, passed through to the notification sweep.
	TestMode   bool   `json:"test_mode,omitempty"`
	TestHour   *int   `json:"test_hour,omitempty"`
	TestUserID string `json:"test_user_id,omitempty"`

	// ReferenceTime allows manual invocation to specify a different "now"
	// for deterministic execution and backfilling. If nil, time.Now().UTC()
	// is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
