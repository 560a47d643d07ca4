package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deedhive/internal/core"
	"deedhive/internal/scheduler"
)

// NotificationProcessor runs one notification sweep. Satisfied by
// *scheduler.NotificationScheduler.
type NotificationProcessor interface {
	Process(ctx context.Context, input scheduler.ProcessInput) (*scheduler.ProcessResult, error)
}

// ProcessNotificationsRequest is the body for POST /v1/notifications/process.
// Scheduled marks cron-originated invocations in logs and the response;
// the test fields mirror the sweep's manual-verification overrides.
type ProcessNotificationsRequest struct {
	Scheduled  bool   `json:"scheduled,omitempty"`
	TestMode   bool   `json:"test_mode,omitempty"`
	TestHour   *int   `json:"test_hour,omitempty" validate:"omitempty,gte=0,lte=23"`
	TestUserID string `json:"test_user_id,omitempty"`
}

// ProcessNotificationsResponse reports the sweep outcome.
type ProcessNotificationsResponse struct {
	Success   bool                     `json:"success"`
	Scheduled bool                     `json:"scheduled"`
	TestMode  bool                     `json:"test_mode"`
	Results   *scheduler.ProcessResult `json:"results"`
}

// NotificationHandler exposes the notification sweep over HTTP.
type NotificationHandler struct {
	processor NotificationProcessor
	validator *core.Validator
	logger    *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(processor NotificationProcessor, v *core.Validator, l *slog.Logger) *NotificationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &NotificationHandler{
		processor: processor,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the notification endpoints.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notifications/process", h.Process)
}

// Process handles POST /v1/notifications/process. An empty body is allowed;
// it means a plain scheduled-style run with no overrides.
func (h *NotificationHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessNotificationsRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	result, err := h.processor.Process(r.Context(), scheduler.ProcessInput{
		TestMode:   req.TestMode,
		TestHour:   req.TestHour,
		TestUserID: req.TestUserID,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ProcessNotificationsResponse{
		Success:   true,
		Scheduled: req.Scheduled,
		TestMode:  req.TestMode,
		Results:   result,
	}})
}
