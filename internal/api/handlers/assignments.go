package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deedhive/internal/core"
	"deedhive/internal/types"
)

// AssignmentRepo defines the assignment mutations the handler needs.
// Mirrors the concrete db.AssignmentRepository methods relevant here.
type AssignmentRepo interface {
	GetByID(ctx context.Context, id string) (*types.UserAction, error)
	MarkCompleted(ctx context.Context, id string) (*types.UserAction, error)
	MarkUncompleted(ctx context.Context, id string) (*types.UserAction, error)
	MarkSkipped(ctx context.Context, id string) (*types.UserAction, error)
	SetNotes(ctx context.Context, id string, notes string) (*types.UserAction, error)
}

// ActionCounterRepo adjusts the catalog's lifetime counters.
type ActionCounterRepo interface {
	IncrementCompleted(ctx context.Context, id string) error
	DecrementCompleted(ctx context.Context, id string) error
	IncrementSkipped(ctx context.Context, id string) error
}

// SetNotesRequest is the body for PUT /v1/assignments/{id}/notes. Notes may
// be empty, which clears them.
type SetNotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// AssignmentHandler serves the completion and note flows on an active
// assignment.
type AssignmentHandler struct {
	assignments AssignmentRepo
	counters    ActionCounterRepo
	validator   *core.Validator
	logger      *slog.Logger
}

// NewAssignmentHandler creates a new AssignmentHandler.
func NewAssignmentHandler(
	assignments AssignmentRepo,
	counters ActionCounterRepo,
	v *core.Validator,
	l *slog.Logger,
) *AssignmentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AssignmentHandler{
		assignments: assignments,
		counters:    counters,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts the assignment endpoints.
func (h *AssignmentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/assignments/{id}", func(r chi.Router) {
		r.Post("/complete", h.Complete)
		r.Post("/uncomplete", h.Uncomplete)
		r.Post("/skip", h.Skip)
		r.Put("/notes", h.SetNotes)
	})
}

// Complete handles POST /v1/assignments/{id}/complete. The catalog's
// completion counter moves only on a real state transition, so repeating
// the call is harmless.
func (h *AssignmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	prior, err := h.assignments.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	updated, err := h.assignments.MarkCompleted(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if !prior.Completed {
		h.adjustCounter(r.Context(), updated.ActionID, "completed",
			h.counters.IncrementCompleted)
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: updated})
}

// Uncomplete handles POST /v1/assignments/{id}/uncomplete, the explicit
// inverse of Complete. The counter only decrements when the assignment was
// actually completed.
func (h *AssignmentHandler) Uncomplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	prior, err := h.assignments.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	updated, err := h.assignments.MarkUncompleted(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if prior.Completed {
		h.adjustCounter(r.Context(), updated.ActionID, "uncompleted",
			h.counters.DecrementCompleted)
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: updated})
}

// Skip handles POST /v1/assignments/{id}/skip.
func (h *AssignmentHandler) Skip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	prior, err := h.assignments.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	updated, err := h.assignments.MarkSkipped(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if !prior.Skipped {
		h.adjustCounter(r.Context(), updated.ActionID, "skipped",
			h.counters.IncrementSkipped)
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: updated})
}

// SetNotes handles PUT /v1/assignments/{id}/notes.
func (h *AssignmentHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	var req SetNotesRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	updated, err := h.assignments.SetNotes(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: updated})
}

// adjustCounter applies a catalog counter change. The assignment state is
// authoritative; a counter failure is logged and swallowed rather than
// surfaced, since failing the request now would leave the user's completed
// state and the statistics permanently at odds.
func (h *AssignmentHandler) adjustCounter(ctx context.Context, actionID, transition string, fn func(context.Context, string) error) {
	if err := fn(ctx, actionID); err != nil {
		h.logger.WarnContext(ctx, "failed to adjust action counter",
			"action_id", actionID,
			"transition", transition,
			"error", err,
		)
	}
}
