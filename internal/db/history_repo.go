package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deedhive/internal/types"
)

// HistoryRepository provides data access for the append-only
// user_actions_history table. Rows are created only by the rotation flow's
// archive-copy step and removed only by the retention maintenance task.
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new HistoryRepository backed by the given
// database connection (pool or transaction).
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// historyColumns defines the standard set of columns selected for history
// queries.
const historyColumns = `h.id, h.user_id, h.action_id, h.assigned_date,
	h.completed, h.completion_date, h.skipped, h.notes, h.created_at, h.archived_at`

// ArchiveBatch copies the given active assignments into history in a single
// multi-row insert, stamping each with archivedAt. History IDs are generated
// by the database; the source assignment's own ID is not carried so a row can
// be archived and reassigned across cycles without key collisions.
//
// The insert happening before the active rows are deleted is the rotation
// flow's fail-closed guarantee: a failure here aborts the rotation with all
// active assignments intact.
func (r *HistoryRepository) ArchiveBatch(ctx context.Context, assignments []*types.UserAction, archivedAt time.Time) (int, error) {
	if len(assignments) == 0 {
		return 0, nil
	}

	const cols = 9
	var (
		sb   strings.Builder
		args = make([]any, 0, len(assignments)*cols)
	)
	sb.WriteString(`INSERT INTO user_actions_history
		(user_id, action_id, assigned_date, completed, completion_date,
		 skipped, notes, created_at, archived_at) VALUES `)
	for i, ua := range assignments {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)

		var notes *string
		if ua.Notes != "" {
			notes = &ua.Notes
		}
		args = append(args,
			ua.UserID,
			ua.ActionID,
			ua.AssignedDate.UTC().Format(types.DateFormat),
			ua.Completed,
			ua.CompletionDate,
			ua.Skipped,
			notes,
			ua.CreatedAt,
			archivedAt.UTC(),
		)
	}

	tag, err := r.db.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to archive assignments", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountByUser returns the number of history rows for a user.
func (r *HistoryRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_actions_history h WHERE h.user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count history", err)
	}
	return count, nil
}

// ListByUser returns a user's history, most recently archived first.
func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*types.UserActionHistory, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+historyColumns+` FROM user_actions_history h
		 WHERE h.user_id = $1
		 ORDER BY h.archived_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list history", err)
	}
	defer rows.Close()

	var records []*types.UserActionHistory
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan history row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list history", err)
	}
	return records, nil
}

// ListOlderThan returns up to limit history rows archived before the cutoff,
// oldest first. Used by the retention maintenance task to page through
// expired rows.
func (r *HistoryRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.UserActionHistory, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+historyColumns+` FROM user_actions_history h
		 WHERE h.archived_at < $1
		 ORDER BY h.archived_at
		 LIMIT $2`,
		cutoff.UTC(),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired history", err)
	}
	defer rows.Close()

	var records []*types.UserActionHistory
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan history row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired history", err)
	}
	return records, nil
}

// DeleteByIDs removes the given history rows and returns the count removed.
// Only the retention maintenance task calls this, after the rows have been
// exported to the archive store.
func (r *HistoryRepository) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM user_actions_history WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete history rows", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanHistory(row interface{ Scan(dest ...any) error }) (*types.UserActionHistory, error) {
	var rec types.UserActionHistory
	var notes *string
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ActionID,
		&rec.AssignedDate,
		&rec.Completed,
		&rec.CompletionDate,
		&rec.Skipped,
		&notes,
		&rec.CreatedAt,
		&rec.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		rec.Notes = *notes
	}
	return &rec, nil
}
