package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/httputil"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// SwapHandler exposes the swap approval workflow.
type SwapHandler struct {
	approvals *service.ApprovalService
	logger    *logger.Logger
}

// NewSwapHandler creates a swap handler.
func NewSwapHandler(approvals *service.ApprovalService, log *logger.Logger) *SwapHandler {
	return &SwapHandler{approvals: approvals, logger: log}
}

// Submit creates a swap request; matching rules may auto-approve it.
func (h *SwapHandler) Submit(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.SubmitSwapRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.approvals.SubmitSwap(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, result)
}

// decideRequest is the body of a chain step decision.
type decideRequest struct {
	Decision   service.SwapDecision `json:"decision" validate:"required,oneof=approve reject delegate"`
	Notes      *string              `json:"notes,omitempty"`
	DelegateID *string              `json:"delegate_id,omitempty"`
}

// Decide applies an approver's decision to one chain step.
func (h *SwapHandler) Decide(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req decideRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.Decision == service.DecisionDelegate && req.DelegateID == nil {
		httputil.Error(w, errors.BadRequest("delegate_id is required when delegating"))
		return
	}

	swap, err := h.approvals.DecideSwapStep(r.Context(), a, chi.URLParam(r, "stepID"), req.Decision, req.Notes, req.DelegateID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, swap)
}

// Cancel withdraws a pending swap request.
func (h *SwapHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	swap, err := h.approvals.CancelSwap(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, swap)
}

// ListPending returns the chain steps awaiting the actor, including
// steps reachable through active delegations.
func (h *SwapHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	pending, err := h.approvals.ListPendingFor(r.Context(), a)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, pending)
}

// ListMine returns swaps the actor requested or is targeted by.
func (h *SwapHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	swaps, err := h.approvals.ListForEmployee(r.Context(), a)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, swaps)
}

// Audit returns the append-only audit trail of one swap.
func (h *SwapHandler) Audit(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	trail, err := h.approvals.AuditTrail(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, trail)
}

// ListRules returns the active approval rules.
func (h *SwapHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	rules, err := h.approvals.ListRules(r.Context(), a)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rules)
}

// CreateRule adds an approval rule.
func (h *SwapHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var rule domain.SwapApprovalRule
	if err := httputil.DecodeJSON(r, &rule); err != nil {
		httputil.Error(w, err)
		return
	}

	created, err := h.approvals.CreateRule(r.Context(), a, &rule)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, created)
}

// UpdateRule mutates an approval rule.
func (h *SwapHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var rule domain.SwapApprovalRule
	if err := httputil.DecodeJSON(r, &rule); err != nil {
		httputil.Error(w, err)
		return
	}
	rule.ID = chi.URLParam(r, "id")

	if err := h.approvals.UpdateRule(r.Context(), a, &rule); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rule)
}

// CreateDelegation registers an approver substitution for the actor.
func (h *SwapHandler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	a := requireActor(w, r)
	if a == nil {
		return
	}
	var req service.CreateDelegationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	delegation, err := h.approvals.CreateDelegation(r.Context(), a, &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, delegation)
}
