package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"deedhive/internal/types"
)

// ActionRepository provides data access for the actions catalog.
//
// The lifetime counters (times_completed, times_skipped) are mutated with
// single-statement atomic increments so concurrent completion flows never
// lose updates; they are monotonically non-decreasing except through the
// explicit "uncomplete" inverse.
type ActionRepository struct {
	db DBTX
}

// NewActionRepository creates a new ActionRepository backed by the given
// database connection (pool or transaction).
func NewActionRepository(db DBTX) *ActionRepository {
	return &ActionRepository{db: db}
}

// actionColumns defines the standard set of columns selected for action
// queries. Used consistently across all query methods to avoid column drift.
const actionColumns = `a.id, a.title, a.category_id, a.is_custom,
	a.times_completed, a.times_skipped, a.created_at`

// scanAction scans a single action row into a types.Action struct.
// The columns must match the order defined in actionColumns.
func scanAction(row pgx.Row) (*types.Action, error) {
	var a types.Action
	var categoryID *string
	err := row.Scan(
		&a.ID,
		&a.Title,
		&categoryID,
		&a.IsCustom,
		&a.TimesCompleted,
		&a.TimesSkipped,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if categoryID != nil {
		a.CategoryID = *categoryID
	}
	return &a, nil
}

// collectActions drains a result set into a slice, closing the rows.
func collectActions(rows pgx.Rows) ([]*types.Action, error) {
	defer rows.Close()
	var actions []*types.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// GetByID retrieves a catalog action by its ID.
// Returns ErrCodeNotFoundAction if no action exists.
func (r *ActionRepository) GetByID(ctx context.Context, id string) (*types.Action, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM actions a WHERE a.id = $1`,
		id,
	)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAction, "action not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve action", err)
	}
	return a, nil
}

// List returns the full catalog ordered by title.
func (r *ActionRepository) List(ctx context.Context) ([]*types.Action, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+actionColumns+` FROM actions a ORDER BY a.title`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list actions", err)
	}
	actions, err := collectActions(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list actions", err)
	}
	return actions, nil
}

// ListByCategory returns all actions in a category ordered by title.
func (r *ActionRepository) ListByCategory(ctx context.Context, categoryID string) ([]*types.Action, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+actionColumns+` FROM actions a WHERE a.category_id = $1 ORDER BY a.title`,
		categoryID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list actions by category", err)
	}
	actions, err := collectActions(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list actions by category", err)
	}
	return actions, nil
}

// ListExcluding returns catalog actions whose IDs are not in the given set.
// This is the rotation candidate query: excludeIDs holds the action IDs the
// user was just archived off of, so they are never reassigned immediately.
// An empty exclusion set returns the whole catalog.
func (r *ActionRepository) ListExcluding(ctx context.Context, excludeIDs []string) ([]*types.Action, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(excludeIDs) == 0 {
		rows, err = r.db.Query(ctx,
			`SELECT `+actionColumns+` FROM actions a`,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+actionColumns+` FROM actions a WHERE NOT (a.id = ANY($1))`,
			excludeIDs,
		)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list candidate actions", err)
	}
	actions, err := collectActions(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list candidate actions", err)
	}
	return actions, nil
}

// ListPopular returns the most-completed actions, most popular first.
func (r *ActionRepository) ListPopular(ctx context.Context, limit int) ([]*types.Action, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+actionColumns+` FROM actions a
		 ORDER BY a.times_completed DESC, a.title
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list popular actions", err)
	}
	actions, err := collectActions(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list popular actions", err)
	}
	return actions, nil
}

// CreateCustom inserts a user-authored action. The caller provides Title and
// optionally CategoryID; the row is stamped is_custom with zeroed counters.
// The generated ID and created_at are written back into the struct.
func (r *ActionRepository) CreateCustom(ctx context.Context, a *types.Action) error {
	var categoryID *string
	if a.CategoryID != "" {
		categoryID = &a.CategoryID
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO actions (title, category_id, is_custom, times_completed, times_skipped)
		 VALUES ($1, $2, TRUE, 0, 0)
		 RETURNING id, created_at`,
		a.Title,
		categoryID,
	)
	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create custom action", err)
	}
	a.IsCustom = true
	return nil
}

// Delete removes an action. Only used as cleanup when associating a freshly
// created custom action with its user fails; catalog actions are never
// deleted.
func (r *ActionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM actions WHERE id = $1`, id); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete action", err)
	}
	return nil
}

// IncrementCompleted bumps times_completed by one.
func (r *ActionRepository) IncrementCompleted(ctx context.Context, id string) error {
	return r.adjustCounter(ctx, id,
		`UPDATE actions SET times_completed = times_completed + 1 WHERE id = $1`)
}

// DecrementCompleted is the explicit inverse of IncrementCompleted, invoked
// only by the uncomplete flow. The counter is floored at zero.
func (r *ActionRepository) DecrementCompleted(ctx context.Context, id string) error {
	return r.adjustCounter(ctx, id,
		`UPDATE actions SET times_completed = GREATEST(times_completed - 1, 0) WHERE id = $1`)
}

// IncrementSkipped bumps times_skipped by one.
func (r *ActionRepository) IncrementSkipped(ctx context.Context, id string) error {
	return r.adjustCounter(ctx, id,
		`UPDATE actions SET times_skipped = times_skipped + 1 WHERE id = $1`)
}

func (r *ActionRepository) adjustCounter(ctx context.Context, id string, sql string) error {
	tag, err := r.db.Exec(ctx, sql, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update action counter", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAction, "action not found", nil)
	}
	return nil
}
