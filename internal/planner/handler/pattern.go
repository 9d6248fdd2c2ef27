package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/httputil"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// PatternHandler exposes recurring shift pattern management.
type PatternHandler struct {
	patterns *service.PatternService
	logger   *logger.Logger
}

// NewPatternHandler creates a pattern handler.
func NewPatternHandler(patterns *service.PatternService, log *logger.Logger) *PatternHandler {
	return &PatternHandler{patterns: patterns, logger: log}
}

// Create registers a recurring pattern.
func (h *PatternHandler) Create(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.CreatePatternRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	pattern, err := h.patterns.Create(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, pattern)
}

// Preview expands a pattern up to the horizon without writing.
func (h *PatternHandler) Preview(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	horizon, err := parseHorizon(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.patterns.Preview(r.Context(), a, chi.URLParam(r, "id"), horizon)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// Generate expands a pattern up to the horizon and persists the shifts.
func (h *PatternHandler) Generate(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	horizon, err := parseHorizon(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.patterns.Generate(r.Context(), a, chi.URLParam(r, "id"), horizon)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// BulkGenerate expands every active pattern up to the horizon.
func (h *PatternHandler) BulkGenerate(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	horizon, err := parseHorizon(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	reports, err := h.patterns.BulkGenerate(r.Context(), a, horizon)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, reports)
}

func parseHorizon(r *http.Request) (calendar.Date, error) {
	v := r.URL.Query().Get("horizon")
	if v == "" {
		return calendar.Date{}, errors.BadRequest("horizon is required, expected YYYY-MM-DD")
	}
	horizon, err := calendar.ParseDate(v)
	if err != nil {
		return calendar.Date{}, errors.BadRequest("invalid horizon, expected YYYY-MM-DD")
	}
	return horizon, nil
}
