package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"deedhive/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
// Used consistently across all query methods to avoid column drift.
const userColumns = `u.id, u.device_id, u.timezone, u.preferences,
	u.streak_count, u.last_action_date, u.onboarding_completed,
	u.created_at, u.updated_at`

// scanUser scans a single user row into a types.User struct.
// The columns must match the order defined in userColumns.
// Uses nullable scan targets for columns that may be NULL in the database
// (device_id, timezone, last_action_date).
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var (
		deviceID *string
		timezone *string
	)
	err := row.Scan(
		&u.ID,
		&deviceID,
		&timezone,
		&u.Preferences,
		&u.StreakCount,
		&u.LastActionDate,
		&u.OnboardingCompleted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if deviceID != nil {
		u.DeviceID = *deviceID
	}
	if timezone != nil {
		u.Timezone = *timezone
	}
	return &u, nil
}

// GetByID retrieves a user by their ID.
// Returns ErrCodeNotFoundUser if no user exists.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`,
		id,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// GetByDeviceID retrieves a user by their stable device identity.
// Returns ErrCodeNotFoundUser if no user is registered for the device.
func (r *UserRepository) GetByDeviceID(ctx context.Context, deviceID string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.device_id = $1`,
		deviceID,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no user for device", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user by device", err)
	}
	return u, nil
}

// Create inserts a new user record for a device identity. The generated ID
// and timestamps are written back into the struct. A duplicate device_id
// surfaces as ErrCodeConflictDeviceExists.
func (r *UserRepository) Create(ctx context.Context, u *types.User) error {
	var deviceID, timezone *string
	if u.DeviceID != "" {
		deviceID = &u.DeviceID
	}
	if u.Timezone != "" {
		timezone = &u.Timezone
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO users (device_id, timezone, preferences, streak_count, onboarding_completed)
		 VALUES ($1, $2, $3, 0, FALSE)
		 RETURNING id, created_at, updated_at`,
		deviceID,
		timezone,
		u.Preferences,
	)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictDeviceExists, "device already registered", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

// ListIDs returns the ID of every user. This is the bulk rotation input; the
// coordinator partitions the result into batches.
func (r *UserRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list user ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list user ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list user ids", err)
	}
	return ids, nil
}

// ListNotifiable returns users eligible for the daily notification sweep:
// device identity present and at least one assignment created on the given
// calendar date. Each returned row pairs the user with one such assignment.
// A non-empty onlyUserID restricts the result to that user (targeted manual
// testing).
func (r *UserRepository) ListNotifiable(ctx context.Context, day time.Time, onlyUserID string) ([]*types.NotifiableUser, error) {
	query := `SELECT u.id, u.device_id, u.timezone, u.preferences, ua.id, ua.action_id
		 FROM users u
		 JOIN user_actions ua ON ua.user_id = u.id
		 WHERE ua.assigned_date = $1 AND u.device_id IS NOT NULL`
	args := []any{day.UTC().Format(types.DateFormat)}
	if onlyUserID != "" {
		query += ` AND u.id = $2`
		args = append(args, onlyUserID)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query notifiable users", err)
	}
	defer rows.Close()

	var users []*types.NotifiableUser
	for rows.Next() {
		var nu types.NotifiableUser
		var timezone *string
		if err := rows.Scan(&nu.UserID, &nu.DeviceID, &timezone, &nu.Preferences, &nu.AssignmentID, &nu.ActionID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notifiable user", err)
		}
		if timezone != nil {
			nu.Timezone = *timezone
		}
		users = append(users, &nu)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query notifiable users", err)
	}
	return users, nil
}

// UpdatePreferences replaces the user's preferences blob.
func (r *UserRepository) UpdatePreferences(ctx context.Context, id string, prefs types.Preferences) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET preferences = $1, updated_at = NOW() WHERE id = $2`,
		prefs,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update preferences", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// UpdateStreak sets the streak counter and last-action date. The client owns
// the streak computation; this is storage only.
func (r *UserRepository) UpdateStreak(ctx context.Context, id string, streakCount int, lastActionDate time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET streak_count = $1, last_action_date = $2, updated_at = NOW()
		 WHERE id = $3`,
		streakCount,
		lastActionDate.UTC().Format(types.DateFormat),
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update streak", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
