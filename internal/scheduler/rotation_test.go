package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"deedhive/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// --- Test Doubles ---

// mockAssignmentRepo simulates the active-assignment store for testing.
type mockAssignmentRepo struct {
	active []*types.UserAction

	listErr   error
	deleteErr error
	createErr error

	deleteCalls int
	deleteCount int64
	created     []*types.UserAction
}

func (m *mockAssignmentRepo) ListActiveByUser(ctx context.Context, userID string) ([]*types.UserAction, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.active, nil
}

func (m *mockAssignmentRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleteCalls++
	return m.deleteCount, nil
}

func (m *mockAssignmentRepo) Create(ctx context.Context, ua *types.UserAction) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, ua)
	return nil
}

// mockHistoryRepo records archive calls for verification.
type mockHistoryRepo struct {
	archiveErr   error
	archiveCalls []archiveCall
}

type archiveCall struct {
	assignments []*types.UserAction
	archivedAt  time.Time
}

func (m *mockHistoryRepo) ArchiveBatch(ctx context.Context, assignments []*types.UserAction, archivedAt time.Time) (int, error) {
	if m.archiveErr != nil {
		return 0, m.archiveErr
	}
	m.archiveCalls = append(m.archiveCalls, archiveCall{assignments: assignments, archivedAt: archivedAt})
	return len(assignments), nil
}

// mockCatalog returns a fixed candidate set and records the exclusion list.
type mockCatalog struct {
	candidates []*types.Action
	listErr    error
	excluded   [][]string
}

func (m *mockCatalog) ListExcluding(ctx context.Context, excludeIDs []string) ([]*types.Action, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.excluded = append(m.excluded, excludeIDs)
	return m.candidates, nil
}

func newTestEngine(assignments *mockAssignmentRepo, history *mockHistoryRepo, catalog *mockCatalog, randInt func(n int) int) *RotationEngine {
	return NewRotationEngine(RotationEngineConfig{
		Assignments: assignments,
		History:     history,
		Catalog:     catalog,
		Logger:      testLogger(),
		Now:         func() time.Time { return time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC) },
		RandInt:     randInt,
	})
}

func activeAssignment(id, actionID string) *types.UserAction {
	return &types.UserAction{
		ID:           id,
		UserID:       "user-1",
		ActionID:     actionID,
		AssignedDate: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

// --- Tests ---

func TestRotateArchivesAndAssigns(t *testing.T) {
	assignments := &mockAssignmentRepo{
		active:      []*types.UserAction{activeAssignment("ua-1", "act-old")},
		deleteCount: 1,
	}
	history := &mockHistoryRepo{}
	catalog := &mockCatalog{candidates: []*types.Action{
		{ID: "act-a", Title: "Hold the door"},
		{ID: "act-b", Title: "Call a friend"},
		{ID: "act-c", Title: "Pick up litter"},
	}}
	engine := newTestEngine(assignments, history, catalog, func(n int) int { return 1 })

	result, err := engine.Rotate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ArchivedCount != 1 {
		t.Errorf("expected ArchivedCount=1, got %d", result.ArchivedCount)
	}
	if result.NewAssignment == nil {
		t.Fatal("expected a new assignment, got nil")
	}
	if result.NewAssignment.ActionID != "act-b" {
		t.Errorf("expected action act-b (rand index 1), got %q", result.NewAssignment.ActionID)
	}
	if result.NewAssignment.UserID != "user-1" {
		t.Errorf("expected UserID=user-1, got %q", result.NewAssignment.UserID)
	}
	if len(history.archiveCalls) != 1 {
		t.Fatalf("expected 1 archive call, got %d", len(history.archiveCalls))
	}
	if assignments.deleteCalls != 1 {
		t.Errorf("expected 1 delete call, got %d", assignments.deleteCalls)
	}
	if len(assignments.created) != 1 {
		t.Fatalf("expected 1 created assignment, got %d", len(assignments.created))
	}
}

func TestRotateNoActiveAssignments(t *testing.T) {
	assignments := &mockAssignmentRepo{}
	history := &mockHistoryRepo{}
	catalog := &mockCatalog{candidates: []*types.Action{{ID: "act-a"}}}
	engine := newTestEngine(assignments, history, catalog, nil)

	result, err := engine.Rotate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ArchivedCount != 0 {
		t.Errorf("expected ArchivedCount=0, got %d", result.ArchivedCount)
	}
	if result.NewAssignment != nil {
		t.Errorf("expected no new assignment, got %+v", result.NewAssignment)
	}
	if len(history.archiveCalls) != 0 {
		t.Errorf("expected no archive calls, got %d", len(history.archiveCalls))
	}
	if assignments.deleteCalls != 0 {
		t.Errorf("expected no delete calls, got %d", assignments.deleteCalls)
	}
}

func TestRotateExcludesArchivedActions(t *testing.T) {
	assignments := &mockAssignmentRepo{
		active: []*types.UserAction{
			activeAssignment("ua-1", "act-old-1"),
			activeAssignment("ua-2", "act-old-2"),
		},
		deleteCount: 2,
	}
	history := &mockHistoryRepo{}
	catalog := &mockCatalog{candidates: []*types.Action{{ID: "act-fresh"}}}
	engine := newTestEngine(assignments, history, catalog, func(n int) int { return 0 })

	result, err := engine.Rotate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ArchivedCount != 2 {
		t.Errorf("expected ArchivedCount=2, got %d", result.ArchivedCount)
	}
	if len(catalog.excluded) != 1 {
		t.Fatalf("expected 1 catalog query, got %d", len(catalog.excluded))
	}
	got := catalog.excluded[0]
	if len(got) != 2 || got[0] != "act-old-1" || got[1] != "act-old-2" {
		t.Errorf("expected exclusion of both archived action IDs, got %v", got)
	}
	if result.NewAssignment.ActionID != "act-fresh" {
		t.Errorf("expected act-fresh assigned, got %q", result.NewAssignment.ActionID)
	}
}

func TestRotateCatalogExhausted(t *testing.T) {
	assignments := &mockAssignmentRepo{
		active:      []*types.UserAction{activeAssignment("ua-1", "act-only")},
		deleteCount: 1,
	}
	history := &mockHistoryRepo{}
	catalog := &mockCatalog{candidates: nil}
	engine := newTestEngine(assignments, history, catalog, nil)

	result, err := engine.Rotate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected exhausted catalog to be a success, got error: %v", err)
	}
	if result.ArchivedCount != 1 {
		t.Errorf("expected ArchivedCount=1, got %d", result.ArchivedCount)
	}
	if result.NewAssignment != nil {
		t.Errorf("expected no new assignment, got %+v", result.NewAssignment)
	}
}

func TestRotateArchiveFailureAbortsBeforeDelete(t *testing.T) {
	assignments := &mockAssignmentRepo{
		active: []*types.UserAction{activeAssignment("ua-1", "act-old")},
	}
	history := &mockHistoryRepo{archiveErr: fmt.Errorf("simulated archive failure")}
	catalog := &mockCatalog{candidates: []*types.Action{{ID: "act-a"}}}
	engine := newTestEngine(assignments, history, catalog, nil)

	_, err := engine.Rotate(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var rerr *RotationError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RotationError, got %T", err)
	}
	if rerr.Stage != StageArchive {
		t.Errorf("expected stage %q, got %q", StageArchive, rerr.Stage)
	}
	if assignments.deleteCalls != 0 {
		t.Errorf("expected no delete after archive failure, got %d delete calls", assignments.deleteCalls)
	}
	if len(assignments.created) != 0 {
		t.Errorf("expected no new assignment after archive failure, got %d", len(assignments.created))
	}
}

func TestRotateErrorStages(t *testing.T) {
	boom := fmt.Errorf("simulated storage failure")
	cases := []struct {
		name  string
		setup func(a *mockAssignmentRepo, h *mockHistoryRepo, c *mockCatalog)
		stage RotationStage
	}{
		{
			name:  "fetch",
			setup: func(a *mockAssignmentRepo, h *mockHistoryRepo, c *mockCatalog) { a.listErr = boom },
			stage: StageFetch,
		},
		{
			name:  "delete",
			setup: func(a *mockAssignmentRepo, h *mockHistoryRepo, c *mockCatalog) { a.deleteErr = boom },
			stage: StageDelete,
		},
		{
			name:  "candidates",
			setup: func(a *mockAssignmentRepo, h *mockHistoryRepo, c *mockCatalog) { c.listErr = boom },
			stage: StageCandidates,
		},
		{
			name:  "assign",
			setup: func(a *mockAssignmentRepo, h *mockHistoryRepo, c *mockCatalog) { a.createErr = boom },
			stage: StageAssign,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assignments := &mockAssignmentRepo{
				active:      []*types.UserAction{activeAssignment("ua-1", "act-old")},
				deleteCount: 1,
			}
			history := &mockHistoryRepo{}
			catalog := &mockCatalog{candidates: []*types.Action{{ID: "act-a"}}}
			tc.setup(assignments, history, catalog)
			engine := newTestEngine(assignments, history, catalog, func(n int) int { return 0 })

			_, err := engine.Rotate(context.Background(), "user-1")
			var rerr *RotationError
			if !errors.As(err, &rerr) {
				t.Fatalf("expected *RotationError, got %T (%v)", err, err)
			}
			if rerr.Stage != tc.stage {
				t.Errorf("expected stage %q, got %q", tc.stage, rerr.Stage)
			}
			if !errors.Is(err, boom) {
				t.Errorf("expected wrapped cause to survive unwrapping")
			}
		})
	}
}

func TestRotateDeleteCountMismatchIsNotFatal(t *testing.T) {
	assignments := &mockAssignmentRepo{
		active:      []*types.UserAction{activeAssignment("ua-1", "act-old")},
		deleteCount: 0, // concurrent writer removed the row first
	}
	history := &mockHistoryRepo{}
	catalog := &mockCatalog{candidates: []*types.Action{{ID: "act-a"}}}
	engine := newTestEngine(assignments, history, catalog, func(n int) int { return 0 })

	result, err := engine.Rotate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected mismatch to be tolerated, got error: %v", err)
	}
	if result.NewAssignment == nil {
		t.Error("expected rotation to still assign a new action")
	}
}

func TestPickUniformCoversAllCandidates(t *testing.T) {
	candidates := []*types.Action{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	for i := range candidates {
		engine := newTestEngine(&mockAssignmentRepo{}, &mockHistoryRepo{}, &mockCatalog{}, func(n int) int {
			if n != len(candidates) {
				t.Fatalf("expected randInt bound %d, got %d", len(candidates), n)
			}
			return i
		})
		if got := engine.pickUniform(candidates); got.ID != candidates[i].ID {
			t.Errorf("index %d: expected %q, got %q", i, candidates[i].ID, got.ID)
		}
	}
}
