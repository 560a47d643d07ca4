// This file implements the daily notification sweep: the hourly service
// that decides, per user and per timezone, whether the "you have a deed
// today" push should fire, and records each send so it never fires twice
// for the same assignment.
//
// Key behaviors:
//   - Eligibility is users with a device identity and an assignment created
//     today (UTC calendar date).
//   - Delivery is bounded to a morning local-time window, resolved through
//     the user's IANA timezone with a UTC fallback for unresolvable zones.
//   - The send ledger (insert-if-absent on assignment ID) is the idempotency
//     guard; test mode relaxes it deliberately.
//   - One user's failure is recorded and never stops the sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deedhive/internal/types"
)

// PushHeading is the fixed notification title; the assigned deed's own title
// is the body.
const PushHeading = "Your Daily Good Deed"

// DefaultPushBody is the body fallback when the assigned action cannot be
// resolved or carries no title.
const DefaultPushBody = "Your daily good deed"

// Default local-time delivery window, hours inclusive. Three hours wide to
// tolerate the hourly polling cadence of the cron trigger.
const (
	DefaultWindowStartHour = 9
	DefaultWindowEndHour   = 11
)

// NotifierUserSource abstracts the eligibility query.
type NotifierUserSource interface {
	// ListNotifiable returns users with a device identity and an assignment
	// created on the given day; onlyUserID narrows to one user when set.
	ListNotifiable(ctx context.Context, day time.Time, onlyUserID string) ([]*types.NotifiableUser, error)
}

// NotifierSendLedger abstracts the append-only send ledger.
type NotifierSendLedger interface {
	// Exists reports whether the assignment was already notified.
	Exists(ctx context.Context, assignmentID string) (bool, error)
	// Record inserts a ledger entry; false means it was already present.
	Record(ctx context.Context, assignmentID, userID string, sentAt time.Time) (bool, error)
}

// NotifierCatalog abstracts the action title lookup.
type NotifierCatalog interface {
	GetByID(ctx context.Context, id string) (*types.Action, error)
}

// PushSender abstracts the push transport, targeted at a device identity.
type PushSender interface {
	Send(ctx context.Context, deviceID, heading, body string) error
}

// NotificationStatsPublisher records sweep-level counters. Best-effort.
type NotificationStatsPublisher interface {
	PublishNotificationStats(ctx context.Context, sent, failed int)
}

// ProcessInput carries the test overrides for a notification sweep.
type ProcessInput struct {
	// TestMode bypasses both the send-ledger check and the time-of-day
	// window, for manual end-to-end verification.
	TestMode bool
	// TestHour, when set, replaces the current UTC hour used for window
	// comparison. It does not affect calendar-date selection, and users
	// with a resolvable timezone still use their real local hour.
	TestHour *int
	// TestUserID restricts the sweep to exactly that user.
	TestUserID string
}

// NotificationDetail records one user's sweep outcome.
type NotificationDetail struct {
	UserID  string `json:"user_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ProcessResult aggregates a sweep's outcomes. Total counts the users that
// passed the filter pipeline; Successful+Failed always equals Total.
type ProcessResult struct {
	Total      int                  `json:"total"`
	Successful int                  `json:"successful"`
	Failed     int                  `json:"failed"`
	Details    []NotificationDetail `json:"details"`
}

// NotificationScheduler runs the daily notification sweep.
type NotificationScheduler struct {
	users   NotifierUserSource
	ledger  NotifierSendLedger
	catalog NotifierCatalog
	push    PushSender
	stats   NotificationStatsPublisher
	logger  *slog.Logger

	windowStart int
	windowEnd   int
	now         func() time.Time
}

// NotificationSchedulerConfig holds the configuration for creating a
// NotificationScheduler. Zero window hours take the defaults; Stats may be
// nil when no metrics backend is wired.
type NotificationSchedulerConfig struct {
	Users       NotifierUserSource
	Ledger      NotifierSendLedger
	Catalog     NotifierCatalog
	Push        PushSender
	Stats       NotificationStatsPublisher
	Logger      *slog.Logger
	WindowStart int
	WindowEnd   int
	Now         func() time.Time
}

// NewNotificationScheduler creates a new NotificationScheduler with the
// given configuration.
func NewNotificationScheduler(cfg NotificationSchedulerConfig) *NotificationScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start, end := cfg.WindowStart, cfg.WindowEnd
	if start == 0 && end == 0 {
		start, end = DefaultWindowStartHour, DefaultWindowEndHour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &NotificationScheduler{
		users:       cfg.Users,
		ledger:      cfg.Ledger,
		catalog:     cfg.Catalog,
		push:        cfg.Push,
		stats:       cfg.Stats,
		logger:      logger,
		windowStart: start,
		windowEnd:   end,
		now:         now,
	}
}

// Process runs one notification sweep. Only the eligibility query is fatal;
// every per-user failure is recorded in the result details and the sweep
// continues.
func (s *NotificationScheduler) Process(ctx context.Context, input ProcessInput) (*ProcessResult, error) {
	now := s.now().UTC()
	currentHour := now.Hour()
	if input.TestHour != nil {
		currentHour = *input.TestHour
	}

	s.logger.InfoContext(ctx, "processing daily notifications",
		"date", now.Format(types.DateFormat),
		"utc_hour", currentHour,
		"test_mode", input.TestMode,
		"test_user_id", input.TestUserID,
	)

	eligible, err := s.users.ListNotifiable(ctx, now, input.TestUserID)
	if err != nil {
		return nil, fmt.Errorf("querying notifiable users: %w", err)
	}

	var toNotify []*types.NotifiableUser
	for _, user := range eligible {
		ok, err := s.shouldNotify(ctx, user, now, currentHour, input.TestMode)
		if err != nil {
			// A ledger read failure for one user must not sink the sweep;
			// skip the user and let the next pass retry.
			s.logger.ErrorContext(ctx, "eligibility check failed, skipping user",
				"user_id", user.UserID,
				"error", err,
			)
			continue
		}
		if ok {
			toNotify = append(toNotify, user)
		}
	}

	s.logger.InfoContext(ctx, "eligible users this pass",
		"candidates", len(eligible),
		"to_notify", len(toNotify),
	)

	result := &ProcessResult{
		Total:   len(toNotify),
		Details: []NotificationDetail{},
	}

	for _, user := range toNotify {
		if err := s.notifyUser(ctx, user, now); err != nil {
			result.Failed++
			result.Details = append(result.Details, NotificationDetail{
				UserID: user.UserID,
				Error:  err.Error(),
			})
			s.logger.ErrorContext(ctx, "failed to notify user",
				"user_id", user.UserID,
				"error", err,
			)
			continue
		}
		result.Successful++
		result.Details = append(result.Details, NotificationDetail{
			UserID:  user.UserID,
			Success: true,
		})
	}

	if s.stats != nil {
		s.stats.PublishNotificationStats(ctx, result.Successful, result.Failed)
	}

	return result, nil
}

// shouldNotify runs the filter pipeline for one eligible user, in order:
// device identity, opt-out flag, send ledger, local-time window. Test mode
// bypasses the ledger and the window.
func (s *NotificationScheduler) shouldNotify(ctx context.Context, user *types.NotifiableUser, now time.Time, currentHour int, testMode bool) (bool, error) {
	// The eligibility query already requires a device, but the push target
	// is too important to trust a join condition alone.
	if user.DeviceID == "" {
		return false, nil
	}

	if user.Preferences.NotificationsDisabled() {
		return false, nil
	}

	if !testMode {
		sent, err := s.ledger.Exists(ctx, user.AssignmentID)
		if err != nil {
			return false, err
		}
		if sent {
			return false, nil
		}
	}

	if testMode {
		return true, nil
	}

	return s.inWindow(ctx, user, now, currentHour), nil
}

// inWindow reports whether the user's local hour falls inside the delivery
// window. Users with a resolvable timezone are judged by their real local
// hour; everyone else (including unresolvable zones) by the current UTC
// hour, which carries any test-hour override.
func (s *NotificationScheduler) inWindow(ctx context.Context, user *types.NotifiableUser, now time.Time, currentHour int) bool {
	hour := currentHour
	if user.Timezone != "" {
		loc, err := time.LoadLocation(user.Timezone)
		if err != nil {
			s.logger.WarnContext(ctx, "unresolvable timezone, falling back to UTC",
				"user_id", user.UserID,
				"timezone", user.Timezone,
			)
		} else {
			hour = now.In(loc).Hour()
		}
	}
	return hour >= s.windowStart && hour <= s.windowEnd
}

// notifyUser resolves the deed title, pushes to the user's device, and
// records the send in the ledger.
func (s *NotificationScheduler) notifyUser(ctx context.Context, user *types.NotifiableUser, now time.Time) error {
	title := DefaultPushBody
	if action, err := s.catalog.GetByID(ctx, user.ActionID); err != nil {
		s.logger.WarnContext(ctx, "could not resolve action title, using default",
			"user_id", user.UserID,
			"action_id", user.ActionID,
			"error", err,
		)
	} else if action.Title != "" {
		title = action.Title
	}

	if err := s.push.Send(ctx, user.DeviceID, PushHeading, title); err != nil {
		return fmt.Errorf("sending push: %w", err)
	}

	inserted, err := s.ledger.Record(ctx, user.AssignmentID, user.UserID, now)
	if err != nil {
		return fmt.Errorf("recording notification: %w", err)
	}
	if !inserted {
		// Test-mode resends land here; in normal mode it means two sweeps
		// raced, which the UNIQUE ledger absorbed.
		s.logger.InfoContext(ctx, "notification already recorded",
			"assignment_id", user.AssignmentID,
		)
	}

	s.logger.InfoContext(ctx, "notification sent",
		"user_id", user.UserID,
		"assignment_id", user.AssignmentID,
	)
	return nil
}
