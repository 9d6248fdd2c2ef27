package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/httputil"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// TemplateHandler exposes shift template management.
type TemplateHandler struct {
	templates *service.TemplateService
	logger    *logger.Logger
}

// NewTemplateHandler creates a template handler.
func NewTemplateHandler(templates *service.TemplateService, log *logger.Logger) *TemplateHandler {
	return &TemplateHandler{templates: templates, logger: log}
}

// List returns templates.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	templates, err := h.templates.List(r.Context(), a, includeInactive)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, templates)
}

// Get returns one template.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	tpl, err := h.templates.Get(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tpl)
}

// Create adds a template.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.CreateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	tpl, err := h.templates.Create(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, tpl)
}

// Update mutates a template.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.UpdateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	tpl, err := h.templates.Update(r.Context(), a, chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tpl)
}

// Clone copies a template under a new name.
func (h *TemplateHandler) Clone(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	tpl, err := h.templates.Clone(r.Context(), a, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, tpl)
}

// SetFavorite toggles the favorite flag.
func (h *TemplateHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req struct {
		Favorite bool `json:"favorite"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.templates.SetFavorite(r.Context(), a, chi.URLParam(r, "id"), req.Favorite); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// Deactivate retires a template.
func (h *TemplateHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	if err := h.templates.Deactivate(r.Context(), a, chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
