package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/httputil"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// LeaveHandler exposes leave requests and the manager decision flow.
type LeaveHandler struct {
	leaves    *service.LeaveService
	conflicts *service.ConflictService
	logger    *logger.Logger
}

// NewLeaveHandler creates a leave handler.
func NewLeaveHandler(leaves *service.LeaveService, conflicts *service.ConflictService, log *logger.Logger) *LeaveHandler {
	return &LeaveHandler{leaves: leaves, conflicts: conflicts, logger: log}
}

// Submit files a leave request.
func (h *LeaveHandler) Submit(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.SubmitLeaveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.leaves.Submit(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, result)
}

// List returns leave requests of one employee in a date range.
func (h *LeaveHandler) List(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	q := r.URL.Query()
	employeeID := q.Get("employee_id")
	if employeeID == "" {
		employeeID = a.EmployeeID
	}
	start, err := calendar.ParseDate(q.Get("start"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid start date, expected YYYY-MM-DD"))
		return
	}
	end, err := calendar.ParseDate(q.Get("end"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid end date, expected YYYY-MM-DD"))
		return
	}

	leaves, err := h.leaves.ListForEmployee(r.Context(), a, employeeID, start, end)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, leaves)
}

// Conflicts re-runs the conflict check for a pending request.
func (h *LeaveHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	report, err := h.leaves.ConflictReport(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// decideLeaveRequest is the body of a leave decision.
type decideLeaveRequest struct {
	Decision service.LeaveDecision `json:"decision" validate:"required,oneof=approve reject"`
	Note     *string               `json:"note,omitempty"`
}

// Decide approves or rejects a leave request.
func (h *LeaveHandler) Decide(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req decideLeaveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	leave, err := h.leaves.Decide(r.Context(), a, chi.URLParam(r, "id"), req.Decision, req.Note)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, leave)
}

// Cancel withdraws a leave request.
func (h *LeaveHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	leave, err := h.leaves.Cancel(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, leave)
}

// recommendRequest names the competing leave requests to rank.
type recommendRequest struct {
	LeaveIDs []string `json:"leave_ids" validate:"required,min=2"`
}

// Recommend runs the three-rule vote over competing requests.
func (h *LeaveHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req recommendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	rec, err := h.leaves.Recommend(r.Context(), a, req.LeaveIDs)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rec)
}

// Suggestions proposes alternative leave windows near a blocked request.
func (h *LeaveHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	q := r.URL.Query()
	employeeID := q.Get("employee_id")
	if employeeID == "" {
		employeeID = a.EmployeeID
	}
	start, err := calendar.ParseDate(q.Get("start"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid start date, expected YYYY-MM-DD"))
		return
	}
	days, err := strconv.Atoi(q.Get("days"))
	if err != nil || days < 1 {
		httputil.Error(w, errors.BadRequest("days must be a positive integer"))
		return
	}
	var teamID *string
	if t := q.Get("team_id"); t != "" {
		teamID = &t
	}
	window := 0
	if v := q.Get("window_days"); v != "" {
		window, _ = strconv.Atoi(v)
	}

	suggestions, err := h.conflicts.SuggestAlternativeLeaveDates(r.Context(), employeeID, start, days, teamID, window)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, suggestions)
}
