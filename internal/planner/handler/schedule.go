package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/httputil"
	"github.com/teamplanner/planner-backend/pkg/logger"
	"github.com/teamplanner/planner-backend/pkg/permissions"
)

// ScheduleHandler exposes orchestrated schedule generation, fairness
// reporting, and the conflict and availability queries.
type ScheduleHandler struct {
	orchestrator *service.Orchestrator
	conflicts    *service.ConflictService
	fairness     *service.FairnessEngine
	perms        permissions.Checker
	logger       *logger.Logger
}

// NewScheduleHandler creates a schedule handler.
func NewScheduleHandler(orc *service.Orchestrator, conflicts *service.ConflictService, fairness *service.FairnessEngine, perms permissions.Checker, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{orchestrator: orc, conflicts: conflicts, fairness: fairness, perms: perms, logger: log}
}

// Preview runs the generator without writing.
func (h *ScheduleHandler) Preview(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.GenerateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.orchestrator.Preview(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// Apply runs the generator and persists the plan atomically.
func (h *ScheduleHandler) Apply(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.GenerateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.orchestrator.Apply(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// Fairness returns the per-class assignment ledger for a window.
func (h *ScheduleHandler) Fairness(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	if !h.perms.Has(a, permissions.ViewSchedule) {
		httputil.Error(w, errors.PermissionDenied(permissions.ViewSchedule))
		return
	}

	class := domain.ShiftClass(r.URL.Query().Get("class"))
	if !class.IsValid() {
		httputil.Error(w, errors.BadRequest("unknown or missing class"))
		return
	}
	start, err := calendar.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid start date, expected YYYY-MM-DD"))
		return
	}
	end, err := calendar.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid end date, expected YYYY-MM-DD"))
		return
	}
	var teamID *string
	if t := r.URL.Query().Get("team_id"); t != "" {
		teamID = &t
	}

	ledger, err := h.fairness.Ledger(r.Context(), class, start, end, teamID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, ledger)
}

// Conflicts returns detected conflicts in a time range, optionally for
// one employee.
func (h *ScheduleHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	if !h.perms.Has(a, permissions.ViewConflicts) {
		httputil.Error(w, errors.PermissionDenied(permissions.ViewConflicts))
		return
	}

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid from, expected RFC3339"))
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid to, expected RFC3339"))
		return
	}
	var employeeID *string
	if e := r.URL.Query().Get("employee_id"); e != "" {
		employeeID = &e
	}

	found, err := h.conflicts.DetectShiftConflicts(r.Context(), from, to, employeeID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, found)
}

// Availability returns the per-employee, per-day availability matrix.
func (h *ScheduleHandler) Availability(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	if !h.perms.Has(a, permissions.ViewSchedule) {
		httputil.Error(w, errors.PermissionDenied(permissions.ViewSchedule))
		return
	}

	start, err := calendar.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid start date, expected YYYY-MM-DD"))
		return
	}
	end, err := calendar.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid end date, expected YYYY-MM-DD"))
		return
	}
	ids := r.URL.Query().Get("employee_ids")
	if ids == "" {
		httputil.Error(w, errors.BadRequest("employee_ids is required"))
		return
	}

	matrix, err := h.conflicts.AvailabilityMatrix(r.Context(), start, end, strings.Split(ids, ","))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, matrix)
}
