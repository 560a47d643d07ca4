package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deedhive/internal/types"
)

// =============================================================================
// Mocks
// =============================================================================

type mockActionRepo struct {
	getFn          func(ctx context.Context, id string) (*types.Action, error)
	listFn         func(ctx context.Context) ([]*types.Action, error)
	listByCatFn    func(ctx context.Context, categoryID string) ([]*types.Action, error)
	listPopularFn  func(ctx context.Context, limit int) ([]*types.Action, error)
	createCustomFn func(ctx context.Context, a *types.Action) error

	deleted     []string
	lastPopular int
}

func (m *mockActionRepo) GetByID(ctx context.Context, id string) (*types.Action, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &types.Action{ID: id, Title: "Hold the door"}, nil
}

func (m *mockActionRepo) List(ctx context.Context) ([]*types.Action, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []*types.Action{{ID: "a1"}, {ID: "a2"}}, nil
}

func (m *mockActionRepo) ListByCategory(ctx context.Context, categoryID string) ([]*types.Action, error) {
	if m.listByCatFn != nil {
		return m.listByCatFn(ctx, categoryID)
	}
	return []*types.Action{{ID: "a1", CategoryID: categoryID}}, nil
}

func (m *mockActionRepo) ListPopular(ctx context.Context, limit int) ([]*types.Action, error) {
	m.lastPopular = limit
	if m.listPopularFn != nil {
		return m.listPopularFn(ctx, limit)
	}
	return []*types.Action{{ID: "a1", TimesCompleted: 100}}, nil
}

func (m *mockActionRepo) CreateCustom(ctx context.Context, a *types.Action) error {
	if m.createCustomFn != nil {
		return m.createCustomFn(ctx, a)
	}
	a.ID = "act-custom-1"
	return nil
}

func (m *mockActionRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type mockAssignmentCreator struct {
	createFn func(ctx context.Context, ua *types.UserAction) error
	created  []*types.UserAction
}

func (m *mockAssignmentCreator) Create(ctx context.Context, ua *types.UserAction) error {
	if m.createFn != nil {
		return m.createFn(ctx, ua)
	}
	ua.ID = "ua-1"
	m.created = append(m.created, ua)
	return nil
}

func newActionRouter(actions *mockActionRepo, assignments *mockAssignmentCreator) chi.Router {
	h := NewActionHandler(actions, assignments, testValidator(), testLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// =============================================================================
// Tests
// =============================================================================

func TestListActions(t *testing.T) {
	router := newActionRouter(&mockActionRepo{}, &mockAssignmentCreator{})

	rec := doJSON(t, router, http.MethodGet, "/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData[[]*types.Action](t, rec)
	assert.Len(t, data, 2)
}

func TestGetActionNotFound(t *testing.T) {
	actions := &mockActionRepo{
		getFn: func(ctx context.Context, id string) (*types.Action, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAction, "action not found", nil)
		},
	}
	router := newActionRouter(actions, &mockAssignmentCreator{})

	rec := doJSON(t, router, http.MethodGet, "/actions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPopularDefaultLimit(t *testing.T) {
	actions := &mockActionRepo{}
	router := newActionRouter(actions, &mockAssignmentCreator{})

	rec := doJSON(t, router, http.MethodGet, "/actions/popular", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultPopularLimit, actions.lastPopular)
}

func TestListPopularCustomLimit(t *testing.T) {
	actions := &mockActionRepo{}
	router := newActionRouter(actions, &mockAssignmentCreator{})

	rec := doJSON(t, router, http.MethodGet, "/actions/popular?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, actions.lastPopular)
}

func TestListPopularInvalidLimit(t *testing.T) {
	router := newActionRouter(&mockActionRepo{}, &mockAssignmentCreator{})

	rec := doJSON(t, router, http.MethodGet, "/actions/popular?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListByCategory(t *testing.T) {
	router := newActionRouter(&mockActionRepo{}, &mockAssignmentCreator{})

	rec := doJSON(t, router, http.MethodGet, "/categories/cat-1/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData[[]*types.Action](t, rec)
	require.Len(t, data, 1)
	assert.Equal(t, "cat-1", data[0].CategoryID)
}

func TestCreateCustomActionAssignsToCreator(t *testing.T) {
	actions := &mockActionRepo{}
	assignments := &mockAssignmentCreator{}
	router := newActionRouter(actions, assignments)

	rec := doJSON(t, router, http.MethodPost, "/actions/custom", map[string]string{
		"user_id":     "user-1",
		"title":       "Water the office plants",
		"category_id": "cat-1",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeData[CreateCustomActionResponse](t, rec)
	assert.True(t, data.Action.IsCustom)
	assert.Equal(t, "Water the office plants", data.Action.Title)
	assert.Equal(t, "user-1", data.Assignment.UserID)
	assert.Equal(t, data.Action.ID, data.Assignment.ActionID)
	require.Len(t, assignments.created, 1)
	assert.Empty(t, actions.deleted)
}

func TestCreateCustomActionCleanupOnAssignmentFailure(t *testing.T) {
	actions := &mockActionRepo{}
	assignments := &mockAssignmentCreator{
		createFn: func(ctx context.Context, ua *types.UserAction) error {
			return types.NewAppError(types.ErrCodeInternalDB, "insert failed", nil)
		},
	}
	router := newActionRouter(actions, assignments)

	rec := doJSON(t, router, http.MethodPost, "/actions/custom", map[string]string{
		"user_id":     "user-1",
		"title":       "Water the office plants",
		"category_id": "cat-1",
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// The just-created action must be deleted when the assignment fails.
	require.Len(t, actions.deleted, 1)
	assert.Equal(t, "act-custom-1", actions.deleted[0])
}

func TestCreateCustomActionValidation(t *testing.T) {
	router := newActionRouter(&mockActionRepo{}, &mockAssignmentCreator{})

	rec := doJSON(t, router, http.MethodPost, "/actions/custom", map[string]string{
		"user_id": "user-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
