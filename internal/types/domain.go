package types

import (
	"time"
)

// DateFormat is the calendar-date layout used for assigned_date and
// last_action_date columns. Assignments are keyed by date, not timestamp.
const DateFormat = "2006-01-02"

// Category groups catalog actions for display (name, accent color, icon).
// Read-mostly; seeded alongside the catalog.
type Category struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Color     string    `json:"color,omitempty" db:"color"`
	Icon      string    `json:"icon,omitempty" db:"icon"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Action is a catalog entry: one good deed a user can be assigned.
// The lifetime counters are monotonically non-decreasing and are only
// mutated by the completion/skip flows (and their explicit inverses).
type Action struct {
	ID         string `json:"id" db:"id"`
	Title      string `json:"title" db:"title"`
	CategoryID string `json:"category_id,omitempty" db:"category_id"`

	// IsCustom marks user-authored actions. Custom actions are the only
	// actions ever deleted, and only as cleanup when the initial
	// user association fails.
	IsCustom bool `json:"is_custom" db:"is_custom"`

	TimesCompleted int `json:"times_completed" db:"times_completed"`
	TimesSkipped   int `json:"times_skipped" db:"times_skipped"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User identifies a person/device. The backend reads only the fields that
// drive rotation and notification eligibility; the rest (streak, onboarding)
// is maintained by the client and stored here.
type User struct {
	ID       string `json:"id" db:"id"`
	DeviceID string `json:"device_id,omitempty" db:"device_id"`

	// Timezone is an IANA zone name ("America/New_York"). Optional; an
	// empty or unresolvable zone falls back to UTC for the notification
	// delivery window.
	Timezone string `json:"timezone,omitempty" db:"timezone"`

	// Preferences is a client-owned JSONB blob. The backend interprets a
	// single key: notificationsDisabled.
	Preferences Preferences `json:"preferences,omitempty" db:"preferences"`

	StreakCount         int        `json:"streak_count" db:"streak_count"`
	LastActionDate      *time.Time `json:"last_action_date,omitempty" db:"last_action_date"`
	OnboardingCompleted bool       `json:"onboarding_completed" db:"onboarding_completed"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserAction is an active daily assignment: one catalog action handed to one
// user for one calendar date. The rotation flow expects at most one active
// row per user, though the model tolerates more (legacy multi-assignment).
type UserAction struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	ActionID string `json:"action_id" db:"action_id"`

	AssignedDate   time.Time  `json:"assigned_date" db:"assigned_date"`
	Completed      bool       `json:"completed" db:"completed"`
	CompletionDate *time.Time `json:"completion_date,omitempty" db:"completion_date"`
	Skipped        bool       `json:"skipped" db:"skipped"`
	Notes          string     `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserActionHistory is an immutable archive copy of a UserAction taken at
// rotation time. Append-only; never mutated or deleted except by the
// retention maintenance task.
type UserActionHistory struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	ActionID string `json:"action_id" db:"action_id"`

	AssignedDate   time.Time  `json:"assigned_date" db:"assigned_date"`
	Completed      bool       `json:"completed" db:"completed"`
	CompletionDate *time.Time `json:"completion_date,omitempty" db:"completion_date"`
	Skipped        bool       `json:"skipped" db:"skipped"`
	Notes          string     `json:"notes,omitempty" db:"notes"`

	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ArchivedAt time.Time `json:"archived_at" db:"archived_at"`
}

// NotificationLogEntry is one row in the append-only send ledger. The UNIQUE
// constraint on AssignmentID is the idempotency guard: a push is recorded at
// most once per assignment, and recording is an atomic insert-if-absent.
type NotificationLogEntry struct {
	AssignmentID string    `json:"assignment_id" db:"assignment_id"`
	UserID       string    `json:"user_id" db:"user_id"`
	SentAt       time.Time `json:"sent_at" db:"sent_at"`
}

// NotifiableUser is one row of the notification eligibility query: a user
// with a device identity joined to one assignment created today.
type NotifiableUser struct {
	UserID      string      `json:"user_id" db:"user_id"`
	DeviceID    string      `json:"device_id" db:"device_id"`
	Timezone    string      `json:"timezone,omitempty" db:"timezone"`
	Preferences Preferences `json:"preferences,omitempty" db:"preferences"`

	AssignmentID string `json:"assignment_id" db:"assignment_id"`
	ActionID     string `json:"action_id" db:"action_id"`
}
