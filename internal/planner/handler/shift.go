package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/httputil"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// ShiftHandler exposes manual shift CRUD, the bulk operations, and CSV
// import/export.
type ShiftHandler struct {
	shifts *service.ShiftService
	bulk   *service.BulkService
	csv    *service.CSVService
	logger *logger.Logger
}

// NewShiftHandler creates a shift handler.
func NewShiftHandler(shifts *service.ShiftService, bulk *service.BulkService, csv *service.CSVService, log *logger.Logger) *ShiftHandler {
	return &ShiftHandler{shifts: shifts, bulk: bulk, csv: csv, logger: log}
}

// List returns shifts matching the query filter.
func (h *ShiftHandler) List(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}

	var filter service.ShiftFilter
	q := r.URL.Query()
	if v := q.Get("employee_id"); v != "" {
		filter.EmployeeID = &v
	}
	if v := q.Get("team_id"); v != "" {
		filter.TeamID = &v
	}
	if v := q.Get("template_id"); v != "" {
		filter.TemplateID = &v
	}
	if v := q.Get("class"); v != "" {
		class := domain.ShiftClass(v)
		if !class.IsValid() {
			httputil.Error(w, errors.BadRequest("unknown class"))
			return
		}
		filter.Class = &class
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("invalid from, expected RFC3339"))
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("invalid to, expected RFC3339"))
			return
		}
		filter.To = t
	}

	shifts, err := h.shifts.List(r.Context(), a, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, shifts)
}

// Get returns one shift.
func (h *ShiftHandler) Get(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	shift, err := h.shifts.Get(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, shift)
}

// Create plans a shift by hand.
func (h *ShiftHandler) Create(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.CreateShiftRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	shift, err := h.shifts.Create(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, shift)
}

// Update mutates a shift.
func (h *ShiftHandler) Update(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.UpdateShiftRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	shift, err := h.shifts.Update(r.Context(), a, chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, shift)
}

// Delete cancels a shift.
func (h *ShiftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	if err := h.shifts.Delete(r.Context(), a, chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// BulkCreate creates one shift per date from a template.
func (h *ShiftHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.BulkCreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.bulk.CreateFromTemplate(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// BulkAssign reassigns shifts to one employee.
func (h *ShiftHandler) BulkAssign(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.BulkAssignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.bulk.AssignEmployee(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// BulkModifyTimes sets or offsets shift times.
func (h *ShiftHandler) BulkModifyTimes(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.BulkModifyTimesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.bulk.ModifyTimes(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// BulkDelete cancels shifts.
func (h *ShiftHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.BulkDeleteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.bulk.Delete(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// Export streams the matching shifts as CSV.
func (h *ShiftHandler) Export(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}

	var filter service.ShiftFilter
	q := r.URL.Query()
	if v := q.Get("employee_id"); v != "" {
		filter.EmployeeID = &v
	}
	if v := q.Get("team_id"); v != "" {
		filter.TeamID = &v
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("invalid from, expected RFC3339"))
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("invalid to, expected RFC3339"))
			return
		}
		filter.To = t
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="shifts.csv"`)
	if err := h.csv.Export(r.Context(), a, filter, w); err != nil {
		h.logger.Error().Err(err).Msg("csv export failed")
		httputil.Error(w, err)
	}
}

// Import reads shifts from a CSV body. ?dry_run=true validates without
// writing.
func (h *ShiftHandler) Import(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	dryRun := r.URL.Query().Get("dry_run") == "true"

	report, err := h.csv.Import(r.Context(), a, r.Body, dryRun)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	status := http.StatusOK
	if len(report.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	httputil.JSON(w, status, report)
}
