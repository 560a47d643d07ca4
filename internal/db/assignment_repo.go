package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"deedhive/internal/types"
)

// AssignmentRepository provides data access for the user_actions table: the
// active daily assignments. Rows leave this table only through the rotation
// flow, which copies them into history first.
type AssignmentRepository struct {
	db DBTX
}

// NewAssignmentRepository creates a new AssignmentRepository backed by the
// given database connection (pool or transaction).
func NewAssignmentRepository(db DBTX) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// assignmentColumns defines the standard set of columns selected for
// assignment queries.
const assignmentColumns = `ua.id, ua.user_id, ua.action_id, ua.assigned_date,
	ua.completed, ua.completion_date, ua.skipped, ua.notes, ua.created_at`

// scanAssignment scans a single assignment row into a types.UserAction.
// The columns must match the order defined in assignmentColumns.
func scanAssignment(row pgx.Row) (*types.UserAction, error) {
	var ua types.UserAction
	var notes *string
	err := row.Scan(
		&ua.ID,
		&ua.UserID,
		&ua.ActionID,
		&ua.AssignedDate,
		&ua.Completed,
		&ua.CompletionDate,
		&ua.Skipped,
		&notes,
		&ua.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		ua.Notes = *notes
	}
	return &ua, nil
}

// GetByID retrieves an assignment by its ID.
// Returns ErrCodeNotFoundAssignment if no row exists.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*types.UserAction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM user_actions ua WHERE ua.id = $1`,
		id,
	)
	ua, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAssignment, "assignment not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve assignment", err)
	}
	return ua, nil
}

// ListActiveByUser returns every active assignment for a user, most recent
// first. The rotation flow expects usually one row but archives whatever it
// finds.
func (r *AssignmentRepository) ListActiveByUser(ctx context.Context, userID string) ([]*types.UserAction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+assignmentColumns+` FROM user_actions ua
		 WHERE ua.user_id = $1
		 ORDER BY ua.assigned_date DESC, ua.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list assignments", err)
	}
	defer rows.Close()

	var assignments []*types.UserAction
	for rows.Next() {
		ua, err := scanAssignment(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan assignment", err)
		}
		assignments = append(assignments, ua)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list assignments", err)
	}
	return assignments, nil
}

// Create inserts a fresh assignment: not completed, not skipped, no
// completion date. The generated ID and created_at are written back.
func (r *AssignmentRepository) Create(ctx context.Context, ua *types.UserAction) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO user_actions (user_id, action_id, assigned_date, completed, skipped)
		 VALUES ($1, $2, $3, FALSE, FALSE)
		 RETURNING id, created_at`,
		ua.UserID,
		ua.ActionID,
		ua.AssignedDate.UTC().Format(types.DateFormat),
	)
	if err := row.Scan(&ua.ID, &ua.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create assignment", err)
	}
	ua.Completed = false
	ua.Skipped = false
	ua.CompletionDate = nil
	return nil
}

// DeleteByUser removes every active assignment for a user in one statement
// and returns the number of rows deleted. Callers compare the count against
// the number of rows they just archived.
func (r *AssignmentRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_actions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete assignments", err)
	}
	return tag.RowsAffected(), nil
}

// MarkCompleted flags the assignment done now, clearing any skip.
func (r *AssignmentRepository) MarkCompleted(ctx context.Context, id string) (*types.UserAction, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE user_actions ua
		 SET completed = TRUE, skipped = FALSE, completion_date = NOW()
		 WHERE ua.id = $1
		 RETURNING `+assignmentColumns,
		id,
	)
	return r.scanMutation(row)
}

// MarkUncompleted reverts a completion, clearing the completion date.
func (r *AssignmentRepository) MarkUncompleted(ctx context.Context, id string) (*types.UserAction, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE user_actions ua
		 SET completed = FALSE, skipped = FALSE, completion_date = NULL
		 WHERE ua.id = $1
		 RETURNING `+assignmentColumns,
		id,
	)
	return r.scanMutation(row)
}

// MarkSkipped flags the assignment skipped. A prior completion is cleared
// but its completion date is left in place, matching the observed client
// behavior.
func (r *AssignmentRepository) MarkSkipped(ctx context.Context, id string) (*types.UserAction, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE user_actions ua
		 SET completed = FALSE, skipped = TRUE
		 WHERE ua.id = $1
		 RETURNING `+assignmentColumns,
		id,
	)
	return r.scanMutation(row)
}

// SetNotes replaces the free-text notes on an assignment.
func (r *AssignmentRepository) SetNotes(ctx context.Context, id string, notes string) (*types.UserAction, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE user_actions ua
		 SET notes = $1
		 WHERE ua.id = $2
		 RETURNING `+assignmentColumns,
		notes,
		id,
	)
	return r.scanMutation(row)
}

func (r *AssignmentRepository) scanMutation(row pgx.Row) (*types.UserAction, error) {
	ua, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAssignment, "assignment not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update assignment", err)
	}
	return ua, nil
}
