// Package handlers contains the HTTP handler implementations for the
// deedhive API: rotation triggers, notification sweeps, catalog access,
// assignment flows, and device-identity handoff.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deedhive/internal/core"
	"deedhive/internal/scheduler"
)

// --- Service Interfaces ---

// UserRotator runs a single user's rotation. Satisfied by
// *scheduler.RotationEngine.
type UserRotator interface {
	Rotate(ctx context.Context, userID string) (*scheduler.RotationResult, error)
}

// BulkRotator runs the all-users rotation. Satisfied by
// *scheduler.BulkRotationCoordinator.
type BulkRotator interface {
	RotateAll(ctx context.Context) (*scheduler.BulkRotationResult, error)
}

// AsyncRotationTrigger enqueues a rotation for later processing. Satisfied
// by *queue.RotationTrigger.
type AsyncRotationTrigger interface {
	TriggerRotation(ctx context.Context, userID string, reason string) error
}

// --- Request/Response Models ---

// RotateUserRequest is the body for both the sync and async single-user
// rotation endpoints.
type RotateUserRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// RotateUserResponse is the sync rotation result.
type RotateUserResponse struct {
	Message       string `json:"message"`
	ArchivedCount int    `json:"archived_count"`
	NewAssignment any    `json:"new_assignment,omitempty"`
}

// --- Handler ---

// RotationHandler exposes the rotation flows over HTTP.
type RotationHandler struct {
	rotator   UserRotator
	bulk      BulkRotator
	trigger   AsyncRotationTrigger
	validator *core.Validator
	logger    *slog.Logger
}

// NewRotationHandler creates a new RotationHandler.
func NewRotationHandler(
	rotator UserRotator,
	bulk BulkRotator,
	trigger AsyncRotationTrigger,
	v *core.Validator,
	l *slog.Logger,
) *RotationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &RotationHandler{
		rotator:   rotator,
		bulk:      bulk,
		trigger:   trigger,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the rotation endpoints.
func (h *RotationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/rotations", func(r chi.Router) {
		r.Post("/user", h.RotateUser)
		r.Post("/user/async", h.RotateUserAsync)
		r.Post("/all", h.RotateAll)
	})
}

// RotateUser handles POST /v1/rotations/user: archive the user's current
// deed and assign a fresh one, synchronously.
func (h *RotationHandler) RotateUser(w http.ResponseWriter, r *http.Request) {
	var req RotateUserRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.rotator.Rotate(r.Context(), req.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := RotateUserResponse{
		Message:       "rotation completed",
		ArchivedCount: result.ArchivedCount,
	}
	if result.NewAssignment != nil {
		resp.NewAssignment = result.NewAssignment
	} else {
		resp.Message = "rotation completed, no new assignment available"
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// RotateUserAsync handles POST /v1/rotations/user/async: enqueue the
// rotation and return immediately.
func (h *RotationHandler) RotateUserAsync(w http.ResponseWriter, r *http.Request) {
	var req RotateUserRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.trigger.TriggerRotation(r.Context(), req.UserID, "api_requested"); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: map[string]any{
		"queued": true,
	}})
}

// RotateAll handles POST /v1/rotations/all: the full fan-out, normally
// invoked by the nightly cron but available to operators. Per-user failures
// are enumerated in the body; the run itself is a 200.
func (h *RotationHandler) RotateAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.bulk.RotateAll(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}
