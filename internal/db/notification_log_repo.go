package db

import (
	"context"
	"time"

	"deedhive/internal/types"
)

// NotificationLogRepository provides data access for the append-only
// notification_log table: the send ledger that makes daily notifications
// idempotent. The UNIQUE constraint on assignment_id turns "record this
// send" into an atomic insert-if-absent, so the check cannot race with
// another scheduler pass the way a read-modify-write of a preferences blob
// would.
type NotificationLogRepository struct {
	db DBTX
}

// NewNotificationLogRepository creates a new NotificationLogRepository backed
// by the given database connection (pool or transaction).
func NewNotificationLogRepository(db DBTX) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// Record inserts a ledger entry for the assignment. Returns true if the
// entry was inserted, false if the assignment was already recorded (conflict
// swallowed, not an error).
func (r *NotificationLogRepository) Record(ctx context.Context, assignmentID, userID string, sentAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO notification_log (assignment_id, user_id, sent_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (assignment_id) DO NOTHING`,
		assignmentID,
		userID,
		sentAt.UTC(),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record notification", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether a send has already been recorded for the assignment.
func (r *NotificationLogRepository) Exists(ctx context.Context, assignmentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_log WHERE assignment_id = $1)`,
		assignmentID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check notification log", err)
	}
	return exists, nil
}
