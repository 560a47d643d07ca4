package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"deedhive/internal/core"
	"deedhive/internal/types"
)

// defaultPopularLimit caps the popular-actions listing.
const defaultPopularLimit = 20

// ActionCatalogRepo defines the catalog access the action handler needs.
// Mirrors the concrete db.ActionRepository methods relevant here.
type ActionCatalogRepo interface {
	GetByID(ctx context.Context, id string) (*types.Action, error)
	List(ctx context.Context) ([]*types.Action, error)
	ListByCategory(ctx context.Context, categoryID string) ([]*types.Action, error)
	ListPopular(ctx context.Context, limit int) ([]*types.Action, error)
	CreateCustom(ctx context.Context, a *types.Action) error
	Delete(ctx context.Context, id string) error
}

// ActionAssignmentCreator creates the initial assignment for a custom
// action.
type ActionAssignmentCreator interface {
	Create(ctx context.Context, ua *types.UserAction) error
}

// CreateCustomActionRequest is the body for POST /v1/actions/custom.
type CreateCustomActionRequest struct {
	UserID     string `json:"user_id" validate:"required"`
	Title      string `json:"title" validate:"required,max=200"`
	CategoryID string `json:"category_id" validate:"required"`
}

// CreateCustomActionResponse returns the created action and its assignment.
type CreateCustomActionResponse struct {
	Action     *types.Action     `json:"action"`
	Assignment *types.UserAction `json:"assignment"`
}

// ActionHandler serves the action catalog and custom action creation.
type ActionHandler struct {
	actions     ActionCatalogRepo
	assignments ActionAssignmentCreator
	validator   *core.Validator
	logger      *slog.Logger
}

// NewActionHandler creates a new ActionHandler.
func NewActionHandler(
	actions ActionCatalogRepo,
	assignments ActionAssignmentCreator,
	v *core.Validator,
	l *slog.Logger,
) *ActionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ActionHandler{
		actions:     actions,
		assignments: assignments,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts the catalog endpoints.
func (h *ActionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/actions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/popular", h.ListPopular)
		r.Post("/custom", h.CreateCustom)
		r.Get("/{id}", h.Get)
	})
	r.Get("/categories/{id}/actions", h.ListByCategory)
}

// List handles GET /v1/actions.
func (h *ActionHandler) List(w http.ResponseWriter, r *http.Request) {
	actions, err := h.actions.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: actions})
}

// Get handles GET /v1/actions/{id}.
func (h *ActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	action, err := h.actions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: action})
}

// ListPopular handles GET /v1/actions/popular, ordered by completion count.
// An optional limit query parameter narrows the result.
func (h *ActionHandler) ListPopular(w http.ResponseWriter, r *http.Request) {
	limit := defaultPopularLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
				"limit must be a number between 1 and 100", nil))
			return
		}
		limit = parsed
	}

	actions, err := h.actions.ListPopular(r.Context(), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: actions})
}

// ListByCategory handles GET /v1/categories/{id}/actions.
func (h *ActionHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	actions, err := h.actions.ListByCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: actions})
}

// CreateCustom handles POST /v1/actions/custom: create a user-authored
// action and hand it to the creator as today's assignment. If the assignment
// insert fails the fresh action is deleted again, so a failed request leaves
// no orphaned catalog entry. This cleanup is the only path that ever deletes
// an action.
func (h *ActionHandler) CreateCustom(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomActionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	action := &types.Action{
		Title:      req.Title,
		CategoryID: req.CategoryID,
		IsCustom:   true,
	}
	if err := h.actions.CreateCustom(r.Context(), action); err != nil {
		core.Error(w, r, err)
		return
	}

	assignment := &types.UserAction{
		UserID:       req.UserID,
		ActionID:     action.ID,
		AssignedDate: time.Now().UTC(),
	}
	if err := h.assignments.Create(r.Context(), assignment); err != nil {
		if delErr := h.actions.Delete(r.Context(), action.ID); delErr != nil {
			h.logger.ErrorContext(r.Context(), "failed to clean up orphaned custom action",
				"action_id", action.ID,
				"error", delErr,
			)
		}
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "custom action created",
		"action_id", action.ID,
		"user_id", req.UserID,
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: CreateCustomActionResponse{
		Action:     action,
		Assignment: assignment,
	}})
}
