package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"deedhive/internal/core"
	"deedhive/internal/types"
)

// UserRepo defines the user store access the handler needs. Mirrors the
// concrete db.UserRepository methods relevant here.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*types.User, error)
	Create(ctx context.Context, u *types.User) error
	UpdatePreferences(ctx context.Context, id string, prefs types.Preferences) error
	UpdateStreak(ctx context.Context, id string, streakCount int, lastActionDate time.Time) error
}

// RegisterUserRequest is the body for POST /v1/users/register: the
// device-identity handoff for a device the backend has not seen.
type RegisterUserRequest struct {
	DeviceID    string            `json:"device_id" validate:"required"`
	Timezone    string            `json:"timezone,omitempty" validate:"omitempty,iana_tz"`
	Preferences types.Preferences `json:"preferences,omitempty"`
}

// UpdateStreakRequest is the body for PUT /v1/users/{id}/streak. The streak
// is computed client-side and stored here.
type UpdateStreakRequest struct {
	StreakCount    int       `json:"streak_count" validate:"gte=0"`
	LastActionDate time.Time `json:"last_action_date" validate:"required"`
}

// UpdatePreferencesRequest is the body for PUT /v1/users/{id}/preferences.
// The blob is client-owned; the backend only ever reads
// notificationsDisabled out of it.
type UpdatePreferencesRequest struct {
	Preferences types.Preferences `json:"preferences" validate:"required"`
}

// UserHandler serves device-identity handoff and the client-maintained user
// fields.
type UserHandler struct {
	users     UserRepo
	validator *core.Validator
	logger    *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users UserRepo, v *core.Validator, l *slog.Logger) *UserHandler {
	if l == nil {
		l = slog.Default()
	}
	return &UserHandler{
		users:     users,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the user endpoints.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Get("/by-device/{device_id}", h.GetByDevice)
		r.Put("/{id}/streak", h.UpdateStreak)
		r.Put("/{id}/preferences", h.UpdatePreferences)
	})
}

// GetByDevice handles GET /v1/users/by-device/{device_id}. An unknown
// device is a 404; the client then registers.
func (h *UserHandler) GetByDevice(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByDeviceID(r.Context(), chi.URLParam(r, "device_id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// Register handles POST /v1/users/register: create the user record for a
// new device. A duplicate device is a conflict, surfaced as such so the
// client falls back to the lookup path.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user := &types.User{
		DeviceID:    req.DeviceID,
		Timezone:    req.Timezone,
		Preferences: req.Preferences,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user registered",
		"user_id", user.ID,
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: user})
}

// UpdateStreak handles PUT /v1/users/{id}/streak.
func (h *UserHandler) UpdateStreak(w http.ResponseWriter, r *http.Request) {
	var req UpdateStreakRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.users.UpdateStreak(r.Context(), id, req.StreakCount, req.LastActionDate); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// UpdatePreferences handles PUT /v1/users/{id}/preferences.
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req UpdatePreferencesRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.users.UpdatePreferences(r.Context(), id, req.Preferences); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}
