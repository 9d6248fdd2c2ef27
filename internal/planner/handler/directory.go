package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/httputil"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// DirectoryHandler exposes employee and team administration.
type DirectoryHandler struct {
	directory *service.DirectoryService
	logger    *logger.Logger
}

// NewDirectoryHandler creates a directory handler.
func NewDirectoryHandler(directory *service.DirectoryService, log *logger.Logger) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, logger: log}
}

// ListEmployees returns active employees, optionally for one team.
func (h *DirectoryHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var teamID *string
	if t := r.URL.Query().Get("team_id"); t != "" {
		teamID = &t
	}

	employees, err := h.directory.ListEmployees(r.Context(), a, teamID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, employees)
}

// GetEmployee returns one employee.
func (h *DirectoryHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	employee, err := h.directory.GetEmployee(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, employee)
}

// CreateEmployee adds an employee record.
func (h *DirectoryHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var e domain.Employee
	if err := httputil.DecodeJSON(r, &e); err != nil {
		httputil.Error(w, err)
		return
	}

	created, err := h.directory.CreateEmployee(r.Context(), a, &e)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, created)
}

// UpdateEmployee mutates an employee record.
func (h *DirectoryHandler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var e domain.Employee
	if err := httputil.DecodeJSON(r, &e); err != nil {
		httputil.Error(w, err)
		return
	}
	e.ID = chi.URLParam(r, "id")

	if err := h.directory.UpdateEmployee(r.Context(), a, &e); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, e)
}

// DeactivateEmployee soft-deletes an employee.
func (h *DirectoryHandler) DeactivateEmployee(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	if err := h.directory.DeactivateEmployee(r.Context(), a, chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// ListTeams returns all teams.
func (h *DirectoryHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	teams, err := h.directory.ListTeams(r.Context(), a)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, teams)
}

// GetTeam returns one team.
func (h *DirectoryHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	team, err := h.directory.GetTeam(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, team)
}

// CreateTeam adds a team.
func (h *DirectoryHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var t domain.Team
	if err := httputil.DecodeJSON(r, &t); err != nil {
		httputil.Error(w, err)
		return
	}

	created, err := h.directory.CreateTeam(r.Context(), a, &t)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, created)
}

// UpdateTeam mutates a team.
func (h *DirectoryHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var t domain.Team
	if err := httputil.DecodeJSON(r, &t); err != nil {
		httputil.Error(w, err)
		return
	}
	t.ID = chi.URLParam(r, "id")

	if err := h.directory.UpdateTeam(r.Context(), a, &t); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}
