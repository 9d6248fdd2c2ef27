package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/httputil"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// NotificationHandler exposes the in-app inbox and preferences.
type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *logger.Logger
}

// NewNotificationHandler creates a notification handler.
func NewNotificationHandler(notifications *service.NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: log}
}

// List returns the actor's notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	notifications, err := h.notifications.List(r.Context(), a, unreadOnly, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, notifications)
}

// MarkRead marks one notification as read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	if err := h.notifications.MarkRead(r.Context(), a, chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// MarkAllRead marks every notification of the actor as read.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	if err := h.notifications.MarkAllRead(r.Context(), a); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// Preferences returns the actor's stored preferences.
func (h *NotificationHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	preferences, err := h.notifications.Preferences(r.Context(), a)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, preferences)
}

// UpdatePreference upserts one per-class preference.
func (h *NotificationHandler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var pref domain.NotificationPreference
	if err := httputil.DecodeJSON(r, &pref); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.notifications.UpdatePreference(r.Context(), a, &pref); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, pref)
}
