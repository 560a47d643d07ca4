// This file implements the rotation engine: the service that retires a
// user's current daily deed into history and hands them a fresh one.
//
// Key behaviors:
//   - Archive-before-delete: active assignments are copied into history
//     before the originals are removed, so a storage failure can never lose
//     an assignment without a history copy existing.
//   - No immediate repeats: the freshly archived action IDs are excluded
//     from the candidate set for the new assignment.
//   - Empty states are terminal successes, not errors: a user with nothing
//     assigned, or a user who has exhausted the catalog, rotates cleanly to
//     a nil new assignment.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"deedhive/internal/types"
)

// RotationStage names the step of the rotation pipeline an error occurred in,
// so callers can tell "nothing happened" from "archived but could not
// reassign".
type RotationStage string

const (
	StageFetch      RotationStage = "fetch_active"
	StageArchive    RotationStage = "archive"
	StageDelete     RotationStage = "delete_active"
	StageCandidates RotationStage = "list_candidates"
	StageAssign     RotationStage = "assign"
)

// RotationError wraps a storage failure with the stage it occurred in and
// the archive count gathered before the failure.
type RotationError struct {
	Stage         RotationStage
	ArchivedCount int
	Err           error
}

// Error implements the error interface.
func (e *RotationError) Error() string {
	return fmt.Sprintf("rotation failed at %s (archived %d): %v", e.Stage, e.ArchivedCount, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *RotationError) Unwrap() error {
	return e.Err
}

// RotationResult is the outcome of one user's rotation. NewAssignment is nil
// when the user had no catalog actions left to draw from, or nothing active
// to rotate; both are successes.
type RotationResult struct {
	ArchivedCount int               `json:"archived_count"`
	NewAssignment *types.UserAction `json:"new_assignment,omitempty"`
}

// RotationAssignmentRepo abstracts the active-assignment operations the
// engine needs. Using an interface allows clean testing without database
// dependencies.
type RotationAssignmentRepo interface {
	ListActiveByUser(ctx context.Context, userID string) ([]*types.UserAction, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	Create(ctx context.Context, ua *types.UserAction) error
}

// RotationHistoryRepo abstracts the archive-copy write.
type RotationHistoryRepo interface {
	ArchiveBatch(ctx context.Context, assignments []*types.UserAction, archivedAt time.Time) (int, error)
}

// RotationCatalog abstracts the candidate query against the action catalog.
type RotationCatalog interface {
	ListExcluding(ctx context.Context, excludeIDs []string) ([]*types.Action, error)
}

// RotationEngine archives a user's active assignments and assigns one new,
// previously-unseen action. Safe for concurrent use across distinct users;
// each rotation touches only its own user's rows.
type RotationEngine struct {
	assignments RotationAssignmentRepo
	history     RotationHistoryRepo
	catalog     RotationCatalog
	logger      *slog.Logger

	now     func() time.Time
	randInt func(n int) int
}

// RotationEngineConfig holds the configuration for creating a RotationEngine.
// Now and RandInt default to the real clock and math/rand when nil; tests
// inject both for determinism.
type RotationEngineConfig struct {
	Assignments RotationAssignmentRepo
	History     RotationHistoryRepo
	Catalog     RotationCatalog
	Logger      *slog.Logger
	Now         func() time.Time
	RandInt     func(n int) int
}

// NewRotationEngine creates a new RotationEngine with the given configuration.
func NewRotationEngine(cfg RotationEngineConfig) *RotationEngine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	randInt := cfg.RandInt
	if randInt == nil {
		randInt = rand.IntN
	}
	return &RotationEngine{
		assignments: cfg.Assignments,
		history:     cfg.History,
		catalog:     cfg.Catalog,
		logger:      logger,
		now:         now,
		randInt:     randInt,
	}
}

// Rotate retires every active assignment the user holds and assigns one new
// action drawn uniformly from the catalog actions not in the retired set.
//
// The steps are strictly sequential, each gating the next:
//  1. Fetch active assignments; none is a clean no-op.
//  2. Copy them into history (fail-closed: abort before deleting anything).
//  3. Delete the active rows in one statement.
//  4. Query the catalog excluding the just-archived action IDs.
//  5. Pick one candidate uniformly and insert the new assignment.
//
// Errors carry the stage they occurred in via *RotationError.
func (e *RotationEngine) Rotate(ctx context.Context, userID string) (*RotationResult, error) {
	active, err := e.assignments.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, &RotationError{Stage: StageFetch, Err: err}
	}

	if len(active) == 0 {
		e.logger.InfoContext(ctx, "no active assignments to rotate", "user_id", userID)
		return &RotationResult{ArchivedCount: 0}, nil
	}

	// The rotation flow expects a single active assignment; more means a
	// legacy multi-assignment state. Everything is archived either way.
	if len(active) > 1 {
		e.logger.WarnContext(ctx, "archiving multiple active assignments",
			"user_id", userID,
			"count", len(active),
		)
	}

	now := e.now().UTC()

	archived, err := e.history.ArchiveBatch(ctx, active, now)
	if err != nil {
		return nil, &RotationError{Stage: StageArchive, Err: err}
	}

	deleted, err := e.assignments.DeleteByUser(ctx, userID)
	if err != nil {
		return nil, &RotationError{Stage: StageDelete, ArchivedCount: archived, Err: err}
	}
	if int(deleted) != archived {
		// Another writer touched the active set between archive and delete.
		// Not fatal, but it violates the one-rotation-cycle assumption.
		e.logger.WarnContext(ctx, "deleted assignment count differs from archived count",
			"user_id", userID,
			"archived", archived,
			"deleted", deleted,
		)
	}

	excludeIDs := make([]string, 0, len(active))
	for _, ua := range active {
		excludeIDs = append(excludeIDs, ua.ActionID)
	}

	candidates, err := e.catalog.ListExcluding(ctx, excludeIDs)
	if err != nil {
		return nil, &RotationError{Stage: StageCandidates, ArchivedCount: archived, Err: err}
	}

	if len(candidates) == 0 {
		e.logger.InfoContext(ctx, "no candidate actions left to assign",
			"user_id", userID,
			"archived", archived,
		)
		return &RotationResult{ArchivedCount: archived}, nil
	}

	chosen := e.pickUniform(candidates)

	assignment := &types.UserAction{
		UserID:       userID,
		ActionID:     chosen.ID,
		AssignedDate: now,
	}
	if err := e.assignments.Create(ctx, assignment); err != nil {
		return nil, &RotationError{Stage: StageAssign, ArchivedCount: archived, Err: err}
	}

	e.logger.InfoContext(ctx, "rotated user assignment",
		"user_id", userID,
		"archived", archived,
		"action_id", chosen.ID,
	)

	return &RotationResult{
		ArchivedCount: archived,
		NewAssignment: assignment,
	}, nil
}

// pickUniform selects one candidate with equal probability for each. The
// selection policy is isolated here so weighting (category balance,
// difficulty curves) can be swapped in without touching the archive/assign
// sequencing above.
func (e *RotationEngine) pickUniform(candidates []*types.Action) *types.Action {
	return candidates[e.randInt(len(candidates))]
}
